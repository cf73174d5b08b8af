package errors

// Error codes for categorizing errors.
// Broker codes name the failure kinds a node reports to its callers; the
// generic codes cover configuration and internal faults.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeUnavailable indicates the node is not running.
	CodeUnavailable = "UNAVAILABLE"

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeConfigError indicates a configuration error.
	CodeConfigError = "CONFIG_ERROR"

	// CodeSerializationError indicates a frame could not be encoded or decoded.
	CodeSerializationError = "SERIALIZATION_ERROR"

	// CodeStorageError indicates the persisted payload store failed.
	CodeStorageError = "STORAGE_ERROR"

	// Broker error codes

	// CodeNoRoute indicates a path segment names no known child.
	CodeNoRoute = "NO_ROUTE"

	// CodeNoParent indicates ".." was applied at the root node.
	CodeNoParent = "NO_PARENT"

	// CodeDuplicateTopic indicates the topic is already registered locally.
	CodeDuplicateTopic = "DUPLICATE_TOPIC"

	// CodeUnknownTopic indicates the topic is not registered on the node.
	CodeUnknownTopic = "UNKNOWN_TOPIC"

	// CodeLinkDown indicates a network failure mid-traversal or on delivery.
	CodeLinkDown = "LINK_DOWN"

	// CodePortBindFailure indicates the listen port could not be bound.
	CodePortBindFailure = "PORT_BIND_FAILURE"

	// CodeAuthFailure indicates the parent rejected the link handshake.
	CodeAuthFailure = "AUTH_FAILURE"
)
