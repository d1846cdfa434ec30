package error

// GenericError is implemented by every error the REST layer maps to a status code.
type GenericError interface {
	ErrCode() string
	Error() string
	StatusCode() int
}
