package codec_test

import (
	"bytes"
	"crypto/md5" //nolint:gosec
	"encoding/binary"
	"testing"

	"github.com/par2kit/par2kit/internal/codec"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPacket serializes a well-formed PAR2 packet: magic, length, self-md5
// (computed over setID..end of body), setID, packetType, body.
func buildPacket(t *testing.T, setID, packetType [16]byte, body []byte) []byte {
	t.Helper()

	for len(body)%4 != 0 {
		body = append(body, 0)
	}

	length := uint64(64 + len(body)) //nolint:mnd

	buf := &bytes.Buffer{}
	buf.WriteString("PAR2\x00PKT")

	lenBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBytes, length)
	buf.Write(lenBytes)

	hasher := md5.New() //nolint:gosec
	hasher.Write(setID[:])
	hasher.Write(packetType[:])
	hasher.Write(body)
	selfMD5 := hasher.Sum(nil)

	buf.Write(selfMD5)
	buf.Write(setID[:])
	buf.Write(packetType[:])
	buf.Write(body)

	return buf.Bytes()
}

var (
	mainTag     = [16]byte{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'M', 'a', 'i', 'n', 0x00, 0x00, 0x00, 0x00}
	fileDescTag = [16]byte{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'F', 'i', 'l', 'e', 'D', 'e', 's', 'c'}
	ifscTag     = [16]byte{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'I', 'F', 'S', 'C', 0x00, 0x00, 0x00, 0x00}
	recvTag     = [16]byte{'P', 'A', 'R', ' ', '2', '.', '0', 0x00, 'R', 'e', 'c', 'v', 'S', 'l', 'i', 'c'}
)

func mainBody(sliceSize uint64, recoveryIDs [][16]byte) []byte {
	buf := &bytes.Buffer{}
	sz := make([]byte, 8)
	binary.LittleEndian.PutUint64(sz, sliceSize)
	buf.Write(sz)

	n := make([]byte, 4)
	binary.LittleEndian.PutUint32(n, uint32(len(recoveryIDs))) //nolint:gosec
	buf.Write(n)

	for _, id := range recoveryIDs {
		buf.Write(id[:])
	}

	return buf.Bytes()
}

func fileDescBody(fileID, fullMD5, head16k [16]byte, length uint64, name string) []byte {
	buf := &bytes.Buffer{}
	buf.Write(fileID[:])
	buf.Write(fullMD5[:])
	buf.Write(head16k[:])

	l := make([]byte, 8)
	binary.LittleEndian.PutUint64(l, length)
	buf.Write(l)
	buf.WriteString(name)

	return buf.Bytes()
}

func TestParseFileMainAndFileDesc(t *testing.T) {
	t.Parallel()

	setID := [16]byte{1}
	fileID := [16]byte{2}
	fullMD5 := [16]byte{3}
	head16k := [16]byte{4}

	var data bytes.Buffer
	data.Write(buildPacket(t, setID, mainTag, mainBody(512, [][16]byte{fileID})))
	data.Write(buildPacket(t, setID, fileDescTag, fileDescBody(fileID, fullMD5, head16k, 100, "hello.bin")))

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/x/test.par2", data.Bytes(), 0o644))

	res, err := codec.ParseFile(fsys, "/x/test.par2", codec.NewDedup())
	require.NoError(t, err)

	require.NotNil(t, res.Main)
	assert.Equal(t, uint64(512), res.Main.SliceSize)
	require.Len(t, res.Main.RecoveryIDs, 1)
	assert.Equal(t, codec.Hash(fileID), res.Main.RecoveryIDs[0])

	fd, ok := res.FileDescs[codec.Hash(fileID)]
	require.True(t, ok)
	assert.Equal(t, "hello.bin", fd.Name)
	assert.Equal(t, uint64(100), fd.Length)
}

func TestParseFileCorruptPacketRecovers(t *testing.T) {
	t.Parallel()

	setID := [16]byte{9}
	fileID := [16]byte{8}

	good1 := buildPacket(t, setID, mainTag, mainBody(512, nil))
	good2 := buildPacket(t, setID, fileDescTag, fileDescBody(fileID, [16]byte{1}, [16]byte{2}, 50, "a.bin"))

	// Corrupt good1's self-md5 so it gets dropped, but good2 should still parse.
	corrupted := append([]byte(nil), good1...)
	corrupted[16] ^= 0xFF

	var data bytes.Buffer
	data.Write(corrupted)
	data.Write(good2)

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/x/test.par2", data.Bytes(), 0o644))

	res, err := codec.ParseFile(fsys, "/x/test.par2", codec.NewDedup())
	require.NoError(t, err)

	assert.Nil(t, res.Main)
	_, ok := res.FileDescs[codec.Hash(fileID)]
	assert.True(t, ok, "file description after the corrupt packet must still be recovered")
}

func TestParseFileIFSCAndRecoverySlice(t *testing.T) {
	t.Parallel()

	setID := [16]byte{5}
	fileID := [16]byte{6}

	ifscBody := &bytes.Buffer{}
	ifscBody.Write(fileID[:])
	ifscBody.Write(make([]byte, 16)) // slice 0 md5 (zero)
	crc := make([]byte, 4)
	binary.LittleEndian.PutUint32(crc, 0xDEADBEEF)
	ifscBody.Write(crc)

	recvBody := &bytes.Buffer{}
	exp := make([]byte, 4)
	binary.LittleEndian.PutUint32(exp, 7)
	recvBody.Write(exp)
	recvBody.Write(bytes.Repeat([]byte{0x42}, 16)) // payload, must be multiple of 4 already

	var data bytes.Buffer
	data.Write(buildPacket(t, setID, ifscTag, ifscBody.Bytes()))
	data.Write(buildPacket(t, setID, recvTag, recvBody.Bytes()))

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/x/test.par2", data.Bytes(), 0o644))

	res, err := codec.ParseFile(fsys, "/x/test.par2", codec.NewDedup())
	require.NoError(t, err)

	ifsc, ok := res.IFSCs[codec.Hash(fileID)]
	require.True(t, ok)
	require.Len(t, ifsc.Checksums, 1)
	assert.Equal(t, uint32(0xDEADBEEF), ifsc.Checksums[0].CRC32)

	require.Len(t, res.RecoverySlices, 1)
	assert.Equal(t, uint32(7), res.RecoverySlices[0].Exponent)
	assert.Equal(t, int64(16), res.RecoverySlices[0].Length)
}

func TestDedupAcrossVolumes(t *testing.T) {
	t.Parallel()

	setID := [16]byte{1}
	fileID := [16]byte{2}
	pkt := buildPacket(t, setID, fileDescTag, fileDescBody(fileID, [16]byte{3}, [16]byte{4}, 10, "f.bin"))

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/x/a.par2", pkt, 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/x/a.vol000+001.par2", pkt, 0o644))

	dedup := codec.NewDedup()

	res1, err := codec.ParseFile(fsys, "/x/a.par2", dedup)
	require.NoError(t, err)
	assert.Len(t, res1.FileDescs, 1)

	res2, err := codec.ParseFile(fsys, "/x/a.vol000+001.par2", dedup)
	require.NoError(t, err)
	assert.Len(t, res2.FileDescs, 0, "duplicate packet across volumes must be a no-op")
}
