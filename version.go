package intake

// Version is the engine release version.
const Version = "0.1.0"
