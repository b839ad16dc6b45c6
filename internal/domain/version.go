package domain

// Version is the release version recorded in transcript metadata and
// sent as the User-Agent to upstream APIs.
const Version = "0.4.0"
