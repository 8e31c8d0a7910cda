package fit

// ErrInvalidArgument is returned when a dataset or model order fails
// validation. Use errors.Is(err, ErrInvalidArgument) to check for it.
var ErrInvalidArgument = &InvalidArgumentError{}

// InvalidArgumentError describes a rejected construction argument.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return "invalid argument"
	}
	return "invalid argument: " + e.Field + " " + e.Reason
}

func (e *InvalidArgumentError) Is(target error) bool {
	_, ok := target.(*InvalidArgumentError)
	return ok
}
