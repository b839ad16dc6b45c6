// Package registration links the built-in backend adapters into a
// binary. Importing it runs each adapter's factory registration, the
// same way database/sql drivers register themselves.
package registration

import (
	_ "github.com/richardspicer/questionable-ai/internal/backend/anthropic"
	_ "github.com/richardspicer/questionable-ai/internal/backend/openaicompat"
	_ "github.com/richardspicer/questionable-ai/internal/backend/openrouter"
)
