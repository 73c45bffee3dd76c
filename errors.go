package objectstream

import (
	"github.com/cockroachdb/errors"
)

// Errors returned by Decoder, Encoder and FieldResolver. Callers classify
// failures with errors.Is; the returned errors carry additional context.
var (
	// ErrMalformed means the stream violates the protocol grammar. The
	// decoder that returned it must be discarded.
	ErrMalformed = errors.New("malformed object stream")

	// ErrTruncated means the source ended in the middle of a value. It is a
	// kind of ErrMalformed.
	ErrTruncated = errors.Wrap(ErrMalformed, "unexpected end of stream")

	// ErrUnsupported means the stream is well-formed but contains a protocol
	// element this codec cannot represent (arrays, enums, proxy classes,
	// externalizable objects, long strings and so on).
	ErrUnsupported = errors.New("unsupported object stream feature")

	// ErrVersion is returned by NewDecoder when the stream version differs
	// from StreamVersion.
	ErrVersion = errors.New("unsupported object stream version")

	// ErrMissingData is returned when an object has no class descriptor.
	ErrMissingData = errors.New("missing class descriptor")

	// ErrFieldNotFound is returned when a class descriptor declares no field
	// of the requested name.
	ErrFieldNotFound = errors.New("field not found")

	// ErrInvalidValue is returned by the encoder when a value cannot be
	// encoded as given. Nothing is written in that case.
	ErrInvalidValue = errors.New("invalid value")

	// ErrClosed is returned by operations on a closed Decoder or Encoder.
	ErrClosed = errors.New("object stream closed")
)

func unsupportedTag(tc byte) error {
	return errors.Wrapf(ErrUnsupported, "%s (0x%02X)", tagName(tc), tc)
}

func invalidTag(context string, tc byte) error {
	return errors.Wrapf(ErrMalformed, "%s: invalid type code: %02X", context, tc)
}
