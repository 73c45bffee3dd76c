// Package objectstream reads and writes the Java Object Serialization Stream
// Protocol.
//
// A Decoder turns a stream into a structural description of what was
// written: class descriptors (*ClassDesc), objects (*Object) holding one
// value per declared field, strings and block data. An Encoder writes such
// values back, replacing repeated objects, descriptors and strings with
// back-references. Neither side instantiates Java classes or Go types.
//
//	dec, err := objectstream.NewDecoder(r)
//	if err != nil {
//		return err
//	}
//	v, err := dec.ReadContent()
//
// Arrays, enums, class objects, proxy class descriptors, externalizable
// objects, exceptions, long strings and long block data are not supported
// and are reported with ErrUnsupported. Text is encoded as standard UTF-8,
// not the modified UTF-8 of the JDK, so strings containing NUL or characters
// outside the Basic Multilingual Plane are not byte-compatible with streams
// written by a JVM.
package objectstream
