package suit

import "errors"

var (
	ErrFatal                        = errors.New("fatal error occured")
	ErrNotSupported                 = errors.New("not supported")
	ErrInvalidType                  = errors.New("invalid type")
	ErrInvalidValue                 = errors.New("invalid value")
	ErrSUITEnvelopeInvalidFormat    = errors.New("invalid SUIT envelope")
	ErrSUITManifestInvalidFormat    = errors.New("invalid SUIT manifest")
	ErrSUITManifestNotAuthenticated = errors.New("SUIT manifest not authenticated")
	ErrSUITDigestMismatch           = errors.New("SUIT digest mismatch")
	ErrSUITPayloadNotFound          = errors.New("SUIT integrated payload not found")
	ErrSUITComponentIDInvalidFormat = errors.New("invalid SUIT component id")
)
