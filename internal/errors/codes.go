package errors

const (
	Success         = 0
	InputError      = 1
	ProviderError   = 2
	ConfigError     = 3
	Timeout         = 12
	NoData          = 20
	InvalidWindow   = 21
	InvalidDatetime = 22
)

// ForStatus maps a result status to the CLI exit code.
func ForStatus(status string) int {
	switch status {
	case "OK":
		return Success
	case "NoData":
		return NoData
	case "InvalidWindow":
		return InvalidWindow
	case "InvalidDatetime":
		return InvalidDatetime
	case "Timeout":
		return Timeout
	default:
		return ProviderError
	}
}
