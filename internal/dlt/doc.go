// Package dlt decodes DLT (Diagnostic Log and Trace) frames.
//
// DLT is the binary logging protocol of automotive ECUs. A frame is a
// standard header, an optional extended header and a payload that is either
// a list of self-describing arguments (verbose mode) or a message id that
// refers to an external description (non-verbose mode).
//
// # Frame Layout
//
//	standard header   4 bytes + optional ECU id, session id, timestamp
//	extended header   10 bytes, present when the UEH flag is set
//	payload           total length minus both headers
//
// Standard header byte 0 carries the flags: bit0 UEH, bit1 MSBF, bit2 WEID,
// bit3 WSID, bit4 WTMS and the protocol version in bits 5-7. Extended
// header byte 0 (MSIN) carries the verbose bit, the message type (bits 1-3)
// and the message type info (bits 4-7).
//
// # Verbose Arguments
//
// Every verbose argument starts with a 32-bit type info field:
//
//	bits 0-3   TYLE   width code (1=8 bit ... 5=128 bit)
//	bit 4-10   BOOL SINT UINT FLOA ARAY STRG RAWD
//	bit 11     VARI   a name (and unit for numbers) precedes the value
//	bit 12     FIXP   quantization and offset precede the value
//	bit 13-14  TRAI STRU
//	bits 15-17 SCOD   string coding (0 ASCII, 1 UTF-8)
//
// Each argument decodes into an Argument whose Value type depends on the
// tag (see Argument). Fixed-point arguments keep their raw value; use
// Argument.Scaled for the physical value.
//
// # Profiles
//
// Two layouts are supported. ProfileDefault reads the standard header length,
// session id and timestamp little-endian and interleaves variable info as
// name length, name, unit length, unit. ProfileAutosar reads them
// big-endian and groups the name and unit lengths, as AUTOSAR PRS does.
// Payload byte order always follows the MSBF flag.
//
// # Streams
//
// Reassembler accepts arbitrarily split chunks and emits frames in order:
//
//	r := dlt.NewReassembler(func(f *dlt.Frame) {
//	    fmt.Println(f)
//	}, dlt.WithStorageHeader(true))
//
//	for chunk := range chunks {
//	    if err := r.AddChunk(chunk); err != nil {
//	        log.Printf("unparseable frame: %v", err)
//	    }
//	}
//
// An incomplete frame at the end of the accumulated bytes is not an error;
// extraction resumes with the next chunk. Malformed frames are reported as
// a *DecodeError carrying the stream offset. With WithResync(true) the
// reassembler skips them and keeps going.
//
// # Errors
//
// Decode failures are *DecodeError values classified by ErrorType:
// structural (bytes missing or lengths inconsistent), incomplete (a
// structural error more data can cure), unsupported encoding and unknown
// type. Use IsIncomplete, IsStructuralError, IsUnsupportedEncoding,
// IsUnknownType and IsRetryable to classify them.
//
// # Encoding
//
// EncodeFrame is the inverse of DecodeFrame and, with the New*Arg
// constructors and NewLogFrame, builds frames for tests and synthetic
// captures.
package dlt
