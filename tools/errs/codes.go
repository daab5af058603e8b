package errs

// 通用错误码
const (
	ServerInternalError = 500
	ArgsError           = 1001
	NoChannelSelected   = 1002
	Unauthorized        = 1003

	// transport
	NetworkError      = 1101 // request never got a response
	StatusError       = 1102 // non 2xx response
	DecodeError       = 1103 // response body unreadable
	SubscriptionError = 1104 // live feed join/leave failed
)

var (
	ErrInternal          = NewCodeError(ServerInternalError, "internal error")
	ErrArgs              = NewCodeError(ArgsError, "invalid arguments")
	ErrNoChannelSelected = NewCodeError(NoChannelSelected, "no channel selected")
	ErrUnauthorized      = NewCodeError(Unauthorized, "unauthorized")
	ErrNetwork           = NewCodeError(NetworkError, "could not reach the message service")
	ErrStatus            = NewCodeError(StatusError, "message service rejected the request")
	ErrDecode            = NewCodeError(DecodeError, "unexpected response from the message service")
	ErrSubscription      = NewCodeError(SubscriptionError, "live updates unavailable")
)
