package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrPinExpired       = fmt.Errorf("sign-in pin expired")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrCatalogRequest     = fmt.Errorf("catalog request failed")
	ErrLibraryRequest     = fmt.Errorf("library request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Storage errors
	ErrMappingNotFound = fmt.Errorf("mapping not found")
	ErrCacheMiss       = fmt.Errorf("cache miss")

	// Sync errors
	ErrSyncInProgress = fmt.Errorf("another sync is already running")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
