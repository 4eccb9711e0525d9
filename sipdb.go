package sipdb

// Specifies the sipdb version. It is used by the CLI tools and
// reported in logs on startup.
const Version = "0.5.0"
