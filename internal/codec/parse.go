package codec

import (
	"bytes"
	"crypto/md5" //nolint:gosec
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/spf13/afero"
)

// ParseResult accumulates every packet of interest found while parsing one
// or more PAR2 volumes belonging to (at most, after a SetID check) a single
// recovery set.
type ParseResult struct {
	SetID Hash

	Main           *MainPacket
	FileDescs      map[Hash]*FileDescPacket // keyed by FileID
	IFSCs          map[Hash]*IFSCPacket     // keyed by FileID
	RecoverySlices []RecoverySliceLocator
	Creators       []CreatorPacket
}

func newParseResult() *ParseResult {
	return &ParseResult{
		FileDescs: make(map[Hash]*FileDescPacket),
		IFSCs:     make(map[Hash]*IFSCPacket),
	}
}

// merge folds other into r, checking that both agree on SetID once either
// has one established.
func (r *ParseResult) merge(other *ParseResult) error {
	if other.SetID != (Hash{}) {
		if r.SetID == (Hash{}) {
			r.SetID = other.SetID
		} else if r.SetID != other.SetID {
			return fmt.Errorf("%w: have %x, got %x", ErrConflictingSetIDs, r.SetID, other.SetID)
		}
	}

	if other.Main != nil {
		if r.Main == nil {
			r.Main = other.Main
		} else if !mainPacketsEqual(r.Main, other.Main) {
			return ErrConflictingMain
		}
	}

	for id, fd := range other.FileDescs {
		if existing, ok := r.FileDescs[id]; !ok || existing.Name == "" {
			r.FileDescs[id] = fd
		}
	}

	for id, ifsc := range other.IFSCs {
		if _, ok := r.IFSCs[id]; !ok {
			r.IFSCs[id] = ifsc
		}
	}

	r.RecoverySlices = append(r.RecoverySlices, other.RecoverySlices...)
	r.Creators = append(r.Creators, other.Creators...)

	return nil
}

func mainPacketsEqual(a, b *MainPacket) bool {
	if a.SetID != b.SetID || a.SliceSize != b.SliceSize {
		return false
	}
	if len(a.RecoveryIDs) != len(b.RecoveryIDs) || len(a.NonRecoveryIDs) != len(b.NonRecoveryIDs) {
		return false
	}
	for i := range a.RecoveryIDs {
		if a.RecoveryIDs[i] != b.RecoveryIDs[i] {
			return false
		}
	}
	for i := range a.NonRecoveryIDs {
		if a.NonRecoveryIDs[i] != b.NonRecoveryIDs[i] {
			return false
		}
	}

	return true
}

// ParseFile parses every recognized packet out of one PAR2 volume at path,
// deduplicating against dedup. Malformed individual packets are dropped
// (spec §7 ErrMalformedPacket: drop packet, continue) rather than failing
// the whole file; only a fatal I/O error aborts parsing of this volume.
func ParseFile(fsys afero.Fs, path string, dedup *Dedup) (*ParseResult, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to open %q: %w", path, err)
	}
	defer f.Close()

	r, ok := f.(io.ReadSeeker)
	if !ok {
		return nil, fmt.Errorf("codec: %q does not support seeking", path)
	}

	result := newParseResult()

	for {
		before, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("codec: failed to seek in %q: %w", path, err)
		}

		entry, selfMD5, err := readNextPacket(r, path)
		if err != nil {
			if err == io.EOF { //nolint:errorlint
				break
			}

			// Drop-and-continue: reposition one byte past the failed read
			// and rescan for the next magic sequence.
			if _, serr := r.Seek(before+1, io.SeekStart); serr != nil {
				return nil, fmt.Errorf("codec: failed to seek past corrupt packet in %q: %w", path, serr)
			}

			if serr := seekToNextPacket(r); serr != nil {
				if serr == io.EOF || serr == io.ErrUnexpectedEOF { //nolint:errorlint
					break
				}

				return nil, fmt.Errorf("codec: failed to recover after corrupt packet in %q: %w", path, serr)
			}

			continue
		}

		if entry == nil {
			continue // recognized-but-uninteresting or skipped packet
		}

		if dedup != nil && dedup.SeenOrMark(selfMD5) {
			continue // already counted from another volume
		}

		switch p := entry.(type) {
		case *MainPacket:
			if result.SetID == (Hash{}) {
				result.SetID = p.SetID
			}
			result.Main = p
		case *FileDescPacket:
			result.FileDescs[p.FileID] = p
		case *UnicodePacket:
			if fd, ok := result.FileDescs[p.FileID]; ok {
				fd.Name = p.Name
			}
		case *IFSCPacket:
			result.IFSCs[p.FileID] = p
		case *RecoverySliceLocator:
			result.RecoverySlices = append(result.RecoverySlices, *p)
		case *CreatorPacket:
			result.Creators = append(result.Creators, *p)
		}
	}

	return result, nil
}

// ParseSet discovers the index file's sibling volumes and parses all of
// them into a single merged [ParseResult], deduplicating packets across
// volumes via a shared [Dedup].
func ParseSet(fsys afero.Fs, indexPath string) (*ParseResult, error) {
	paths, err := Discover(fsys, indexPath)
	if err != nil {
		return nil, err
	}

	dedup := NewDedup()
	merged := newParseResult()

	for _, p := range paths {
		res, err := ParseFile(fsys, p, dedup)
		if err != nil {
			return nil, err
		}

		if err := merged.merge(res); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// readNextPacket reads one packet from r, returning the parsed body (as one
// of *MainPacket, *FileDescPacket, *UnicodePacket, *IFSCPacket,
// *RecoverySliceLocator or *CreatorPacket), and the packet's self-MD5. A nil
// body with a nil error means an uninteresting-but-well-formed packet was
// skipped; the reader has already been advanced past it.
func readNextPacket(r io.ReadSeeker, path string) (any, Hash, error) { //nolint:cyclop
	headerBytes := make([]byte, packetHeaderSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		if err == io.EOF { //nolint:errorlint
			return nil, Hash{}, io.EOF
		}

		return nil, Hash{}, fmt.Errorf("%w: failed to read header: %w", ErrMalformedPacket, err)
	}

	var magic [8]byte
	copy(magic[:], headerBytes[0:8])
	if magic != packetMagic {
		return nil, Hash{}, fmt.Errorf("%w: bad magic", ErrInvalidMagic)
	}

	length := binary.LittleEndian.Uint64(headerBytes[8:16])

	var selfMD5, setID, packetType Hash
	copy(selfMD5[:], headerBytes[16:32])
	copy(setID[:], headerBytes[32:48])
	copy(packetType[:], headerBytes[48:64])

	if length < minPacketSize || length > maxPacketSize || length%4 != 0 {
		return nil, Hash{}, fmt.Errorf("%w: invalid length %d", ErrMalformedPacket, length)
	}

	bodyLen := int64(length) - packetHeaderSize //nolint:gosec

	// RecoverySlice bodies are never buffered: only their fixed exponent
	// prefix is kept, the payload is streamed through the self-MD5 check
	// and located, but not retained.
	if packetType == recoverySliceType {
		return readRecoverySlice(r, path, setID, bodyLen, headerBytes, selfMD5)
	}

	bodyBytes := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, bodyBytes); err != nil {
		return nil, Hash{}, fmt.Errorf("%w: failed to read body: %w", ErrMalformedPacket, err)
	}

	if err := verifySelfMD5(headerBytes, bodyBytes, selfMD5); err != nil {
		return nil, Hash{}, err
	}

	switch packetType {
	case mainType, packedMainType:
		p, err := parseMainBody(setID, bodyBytes)
		return p, selfMD5, err
	case fileDescType:
		p, err := parseFileDescBody(setID, bodyBytes)
		return p, selfMD5, err
	case unicodeDescType:
		p, err := parseUnicodeBody(setID, bodyBytes)
		return p, selfMD5, err
	case ifscType:
		p, err := parseIFSCBody(setID, bodyBytes)
		return p, selfMD5, err
	case creatorType:
		return &CreatorPacket{SetID: setID, Text: string(bytes.TrimRight(bodyBytes, "\x00"))}, selfMD5, nil
	default:
		return nil, selfMD5, nil // recognized-as-skippable
	}
}

func readRecoverySlice(
	r io.ReadSeeker, path string, setID Hash, bodyLen int64, headerBytes []byte, selfMD5 Hash,
) (any, Hash, error) {
	if bodyLen < recoverySliceFixedSize {
		return nil, Hash{}, fmt.Errorf("%w: recovery slice body too short", ErrMalformedPacket)
	}

	expBytes := make([]byte, recoverySliceFixedSize)
	if _, err := io.ReadFull(r, expBytes); err != nil {
		return nil, Hash{}, fmt.Errorf("%w: failed to read exponent: %w", ErrMalformedPacket, err)
	}

	payloadOffset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, Hash{}, fmt.Errorf("codec: failed to locate payload: %w", err)
	}

	payloadLen := bodyLen - recoverySliceFixedSize

	// Stream the payload through an MD5 hash to validate the self-MD5
	// without ever retaining the bytes.
	hasher := md5.New() //nolint:gosec
	hasher.Write(headerBytes[packetHashOffset:])
	hasher.Write(expBytes)

	if _, err := io.CopyN(hasher, r, payloadLen); err != nil {
		return nil, Hash{}, fmt.Errorf("%w: failed to hash payload: %w", ErrMalformedPacket, err)
	}

	var computed Hash
	copy(computed[:], hasher.Sum(nil))
	if computed != selfMD5 {
		return nil, Hash{}, fmt.Errorf("%w: expected %x, got %x", ErrChecksumMismatch, selfMD5, computed)
	}

	loc := &RecoverySliceLocator{
		SetID:    setID,
		Path:     path,
		Offset:   payloadOffset,
		Length:   payloadLen,
		Exponent: binary.LittleEndian.Uint32(expBytes),
	}

	return loc, selfMD5, nil
}

func verifySelfMD5(headerBytes, bodyBytes []byte, want Hash) error {
	hasher := md5.New() //nolint:gosec
	hasher.Write(headerBytes[packetHashOffset:])
	hasher.Write(bodyBytes)

	var computed Hash
	copy(computed[:], hasher.Sum(nil))

	if computed != want {
		return fmt.Errorf("%w: expected %x, got %x", ErrChecksumMismatch, want, computed)
	}

	return nil
}

const mainFixedSize = 12 // SliceSize(8) + NumRecoveryFiles(4)

func parseMainBody(setID Hash, body []byte) (*MainPacket, error) {
	if len(body) < mainFixedSize {
		return nil, fmt.Errorf("%w: main packet body too short", ErrMalformedPacket)
	}

	sliceSize := binary.LittleEndian.Uint64(body[0:8])
	if sliceSize%4 != 0 {
		return nil, fmt.Errorf("%w: slice size %d not a multiple of 4", ErrMalformedPacket, sliceSize)
	}

	numRecovery := binary.LittleEndian.Uint32(body[8:12])
	if uint64(numRecovery)*HashSize > uint64(len(body)-mainFixedSize) {
		return nil, fmt.Errorf("%w: recovery id count mismatch", ErrMalformedPacket)
	}

	cur := mainFixedSize
	recoveryIDs := make([]Hash, numRecovery)
	for i := range recoveryIDs {
		copy(recoveryIDs[i][:], body[cur:cur+HashSize])
		cur += HashSize
	}

	remaining := len(body) - cur
	if remaining%HashSize != 0 {
		return nil, fmt.Errorf("%w: non-recovery id section misaligned", ErrMalformedPacket)
	}

	nonRecoveryIDs := make([]Hash, remaining/HashSize)
	for i := range nonRecoveryIDs {
		copy(nonRecoveryIDs[i][:], body[cur:cur+HashSize])
		cur += HashSize
	}

	return &MainPacket{
		SetID:          setID,
		SliceSize:      sliceSize,
		RecoveryIDs:    recoveryIDs,
		NonRecoveryIDs: nonRecoveryIDs,
	}, nil
}

const fileDescFixedSize = 56 // FileID(16) + FullMD5(16) + Head16k(16) + Length(8)

func parseFileDescBody(setID Hash, body []byte) (*FileDescPacket, error) {
	if len(body) < fileDescFixedSize {
		return nil, fmt.Errorf("%w: file description body too short", ErrMalformedPacket)
	}

	var fileID, fullMD5, head16k Hash
	copy(fileID[:], body[0:16])
	copy(fullMD5[:], body[16:32])
	copy(head16k[:], body[32:48])
	length := binary.LittleEndian.Uint64(body[48:56])

	nameBytes := body[fileDescFixedSize:]
	if len(nameBytes) > maxFilenameLength {
		return nil, fmt.Errorf("%w: filename length %d", ErrFilenameTooLong, len(nameBytes))
	}

	name := string(bytes.TrimRight(nameBytes, "\x00"))
	if name == "" {
		return nil, fmt.Errorf("%w: empty filename", ErrMalformedPacket)
	}

	return &FileDescPacket{
		SetID:   setID,
		FileID:  fileID,
		Name:    name,
		Length:  length,
		FullMD5: fullMD5,
		Head16k: head16k,
	}, nil
}

func parseUnicodeBody(setID Hash, body []byte) (*UnicodePacket, error) {
	if len(body) < HashSize+2 {
		return nil, fmt.Errorf("%w: unicode body too short", ErrMalformedPacket)
	}

	var fileID Hash
	copy(fileID[:], body[:HashSize])

	nameBytes := body[HashSize:]
	if len(nameBytes)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length utf-16 name", ErrMalformedPacket)
	}
	if len(nameBytes) > maxFilenameLength*2 {
		return nil, fmt.Errorf("%w: filename length %d", ErrFilenameTooLong, len(nameBytes))
	}

	u16 := make([]uint16, len(nameBytes)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(nameBytes[i*2:])
	}
	for i, v := range u16 {
		if v == 0 {
			u16 = u16[:i]

			break
		}
	}

	if len(u16) == 0 {
		return nil, fmt.Errorf("%w: empty unicode filename", ErrMalformedPacket)
	}

	return &UnicodePacket{SetID: setID, FileID: fileID, Name: string(utf16.Decode(u16))}, nil
}

const ifscEntrySize = HashSize + 4 // MD5(16) + CRC32(4)

func parseIFSCBody(setID Hash, body []byte) (*IFSCPacket, error) {
	if len(body) < HashSize {
		return nil, fmt.Errorf("%w: ifsc body too short", ErrMalformedPacket)
	}

	var fileID Hash
	copy(fileID[:], body[:HashSize])

	rest := body[HashSize:]
	if len(rest)%ifscEntrySize != 0 {
		return nil, fmt.Errorf("%w: ifsc checksum section misaligned", ErrMalformedPacket)
	}

	count := len(rest) / ifscEntrySize
	checksums := make([]SliceChecksum, count)

	cur := 0
	for i := range checksums {
		var md5h Hash
		copy(md5h[:], rest[cur:cur+HashSize])
		cur += HashSize
		crc := binary.LittleEndian.Uint32(rest[cur : cur+4])
		cur += 4

		checksums[i] = SliceChecksum{MD5: md5h, CRC32: crc}
	}

	return &IFSCPacket{SetID: setID, FileID: fileID, Checksums: checksums}, nil
}

// seekToNextPacket advances r until the next occurrence of packetMagic (or
// EOF), leaving r positioned at the start of that occurrence.
func seekToNextPacket(r io.ReadSeeker) error {
	buf := make([]byte, recoverBufferSize)
	magicLen := len(packetMagic)
	stalls := 0

	for {
		before, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return fmt.Errorf("codec: failed to seek: %w", err)
		}

		n, readErr := r.Read(buf)

		if n >= magicLen {
			if idx := bytes.Index(buf[:n], packetMagic[:]); idx != -1 {
				if _, err := r.Seek(before+int64(idx), io.SeekStart); err != nil {
					return fmt.Errorf("codec: failed to seek: %w", err)
				}

				return nil
			}

			if readErr == nil {
				backtrack := int64(magicLen - 1)
				if _, err := r.Seek(-backtrack, io.SeekCurrent); err != nil {
					return fmt.Errorf("codec: failed to seek: %w", err)
				}
			}
		}

		if n == 0 && readErr == nil {
			stalls++
			if stalls > recoverStallRetries {
				return io.ErrUnexpectedEOF
			}
		} else {
			stalls = 0
		}

		if readErr != nil {
			if readErr == io.EOF { //nolint:errorlint
				return io.EOF
			}

			return fmt.Errorf("codec: failed to read: %w", readErr)
		}
	}
}
