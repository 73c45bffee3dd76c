package objectstream

// The following symbols in `java.io.ObjectStreamConstants` define
// the terminal and constant values expected in a stream.
const (
	StreamMagic      uint16 = 0xaced
	StreamVersion    uint16 = 5
	TcNull           byte   = 0x70
	TcReference      byte   = 0x71
	TcClassdesc      byte   = 0x72
	TcObject         byte   = 0x73
	TcString         byte   = 0x74
	TcArray          byte   = 0x75
	TcClass          byte   = 0x76
	TcBlockdata      byte   = 0x77
	TcEndblockdata   byte   = 0x78
	TcReset          byte   = 0x79
	TcBlockdatalong  byte   = 0x7A
	TcException      byte   = 0x7B
	TcLongstring     byte   = 0x7C
	TcProxyclassdesc byte   = 0x7D
	TcEnum           byte   = 0x7E
	baseWireHandle   int32  = 0x7E0000
)

// Field type codes that introduce a reference-typed field.
const (
	typeCodeArray  byte = '['
	typeCodeObject byte = 'L'
)

// Length limits of the short forms. Anything longer needs the long forms,
// which are not implemented.
const (
	maxUTFLength       = 0xFFFF
	maxBlockDataLength = 0xFF
	maxFieldCount      = 0x7FFF
)

func tagName(tc byte) string {
	switch tc {
	case TcNull:
		return "TC_NULL"
	case TcReference:
		return "TC_REFERENCE"
	case TcClassdesc:
		return "TC_CLASSDESC"
	case TcObject:
		return "TC_OBJECT"
	case TcString:
		return "TC_STRING"
	case TcArray:
		return "TC_ARRAY"
	case TcClass:
		return "TC_CLASS"
	case TcBlockdata:
		return "TC_BLOCKDATA"
	case TcEndblockdata:
		return "TC_ENDBLOCKDATA"
	case TcReset:
		return "TC_RESET"
	case TcBlockdatalong:
		return "TC_BLOCKDATALONG"
	case TcException:
		return "TC_EXCEPTION"
	case TcLongstring:
		return "TC_LONGSTRING"
	case TcProxyclassdesc:
		return "TC_PROXYCLASSDESC"
	case TcEnum:
		return "TC_ENUM"
	default:
		return "unknown"
	}
}
