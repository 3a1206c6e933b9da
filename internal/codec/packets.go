// Package codec decodes PAR2 binary packets from a byte stream: it
// validates the packet header and self-MD5, deduplicates packets already
// seen in the session, and hands typed packet bodies upward to the
// sliceset package, which assembles them into a RecoverySet.
package codec

import "errors"

// HashSize is the width, in bytes, of every MD5-sized PAR2 identifier
// (set id, file id, slice checksum, packet self-MD5).
const HashSize = 16

// Hash is a raw 16-byte MD5-sized identifier as it appears on the wire,
// before the sliceset package wraps it in a nominal type.
type Hash [HashSize]byte

const (
	maxPacketSize     = 100 << 20 // 100 MiB, per spec §4.2
	minPacketSize     = 64        // header-only packet, per spec §4.2
	maxFilenameLength = 65535

	packetHeaderSize = 64 // magic(8) + length(8) + selfMD5(16) + setID(16) + type(16)
	packetHashOffset = 32 // MD5 covers setID..end-of-body, i.e. header[32:]+body

	recoverySliceFixedSize = 4 // exponent, the rest of the body is payload

	recoverBufferSize   = 16384
	recoverStallRetries = 10
)

var (
	packetMagic = [8]byte{'P', 'A', 'R', '2', 0x00, 'P', 'K', 'T'}

	mainType          = Hash{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'M', 'a', 'i', 'n', 0x00, 0x00, 0x00, 0x00}
	packedMainType    = Hash{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'P', 'k', 'd', 'M', 'a', 'i', 'n', 0x00}
	fileDescType      = Hash{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'F', 'i', 'l', 'e', 'D', 'e', 's', 'c'}
	unicodeDescType   = Hash{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'U', 'n', 'i', 'F', 'i', 'l', 'e', 'N'}
	ifscType          = Hash{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'I', 'F', 'S', 'C', 0x00, 0x00, 0x00, 0x00}
	recoverySliceType = Hash{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'R', 'e', 'c', 'v', 'S', 'l', 'i', 'c'}
	creatorType       = Hash{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'C', 'r', 'e', 'a', 't', 'o', 'r', 0x00}
)

var (
	ErrMalformedPacket     = errors.New("codec: malformed packet")
	ErrChecksumMismatch    = errors.New("codec: packet self-md5 mismatch")
	ErrInvalidMagic        = errors.New("codec: invalid packet magic")
	ErrFilenameTooLong     = errors.New("codec: filename exceeds maximum length")
	ErrConflictingSetIDs   = errors.New("codec: packets reference more than one set id")
	ErrConflictingMain     = errors.New("codec: conflicting main packets in same set")
	errSkipPacket          = errors.New("codec: skip this packet body")
)

// MainPacket is the index packet: slice size and the ordered recovery file
// id list that fixes the global slice-index space, per spec §3.
type MainPacket struct {
	SetID          Hash
	SliceSize      uint64
	RecoveryIDs    []Hash
	NonRecoveryIDs []Hash
}

// FileDescPacket describes one target file.
type FileDescPacket struct {
	SetID   Hash
	FileID  Hash
	Name    string
	Length  uint64
	FullMD5 Hash
	Head16k Hash
}

// UnicodePacket overrides a FileDescPacket's name with a UTF-16LE encoded
// variant, for cross-platform filename fidelity.
type UnicodePacket struct {
	SetID  Hash
	FileID Hash
	Name   string
}

// SliceChecksum is the (MD5, CRC32) pair recorded for one data slice of one
// file, taken over the slice zero-padded to SliceSize.
type SliceChecksum struct {
	MD5   Hash
	CRC32 uint32
}

// IFSCPacket carries the per-slice checksum sequence for one file.
type IFSCPacket struct {
	SetID     Hash
	FileID    Hash
	Checksums []SliceChecksum
}

// RecoverySliceLocator is a lazy pointer to a recovery slice's payload
// bytes: it never buffers the payload itself, per the Codec's memory
// policy (spec §4.2, §9).
type RecoverySliceLocator struct {
	SetID    Hash
	Path     string
	Offset   int64
	Length   int64
	Exponent uint32
}

// CreatorPacket is informational; only its self-MD5 is validated and its
// textual payload is collected into [ParseResult.Creators]. Nothing logs
// or prints it.
type CreatorPacket struct {
	SetID Hash
	Text  string
}
