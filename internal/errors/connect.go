package errors

import (
	"errors"

	"connectrpc.com/connect"
)

// MetadataKey carries the domain code on Connect errors.
const MetadataKey = "Trustsplit-Error-Code"

// ToConnect converts a domain error into a Connect error. The message is kept
// verbatim so remote-provided revert reasons reach the user unchanged.
func ToConnect(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	code := GetCode(err)
	cerr := connect.NewError(code.ConnectCode(), errors.New(Message(err)))
	cerr.Meta().Set(MetadataKey, string(code))
	return cerr
}

// FromConnect recovers the domain code from a Connect error produced by ToConnect.
func FromConnect(err error) Code {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return CodeUnknown
	}
	if code := connectErr.Meta().Get(MetadataKey); code != "" {
		return Code(code)
	}
	return CodeUnknown
}
