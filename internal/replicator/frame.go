package replicator

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
	"github.com/fluidsettings/fluid-settingsd/internal/util"
)

// maxFrameSize bounds a single peer message so a corrupt length
// prefix can never make ReadFrame try to allocate an unbounded
// buffer.
const maxFrameSize = 16 << 20

// wireMessage is the JSON encoding of a busmsg.Message carried inside
// a frame.
type wireMessage struct {
	Command string            `json:"command"`
	Params  map[string]string `json:"params,omitempty"`
}

// writeFrame encodes msg as [length:4][crc32c:4][json payload] and
// writes it to w. The framing mirrors the teacher's WAL segment
// format (internal/wal/segment.go), repurposed here from on-disk
// records to peer-channel messages, with internal/util's CRC32C
// primitive reused unchanged.
func writeFrame(w io.Writer, msg busmsg.Message) error {
	payload, err := json.Marshal(wireMessage{Command: msg.Command, Params: msg.Params})
	if err != nil {
		return fmt.Errorf("replicator: encode frame: %w", err)
	}

	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(header[4:8], util.Checksum(payload))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("replicator: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("replicator: write frame payload: %w", err)
	}
	return nil
}

// readFrame reads and validates one frame written by writeFrame.
func readFrame(r io.Reader) (busmsg.Message, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return busmsg.Message{}, err
	}
	length := binary.BigEndian.Uint32(header[0:4])
	checksum := binary.BigEndian.Uint32(header[4:8])
	if length > maxFrameSize {
		return busmsg.Message{}, fmt.Errorf("replicator: frame too large (%d bytes)", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return busmsg.Message{}, err
	}
	if !util.VerifyChecksum(payload, checksum) {
		return busmsg.Message{}, fmt.Errorf("replicator: frame checksum mismatch")
	}

	var wm wireMessage
	if err := json.Unmarshal(payload, &wm); err != nil {
		return busmsg.Message{}, fmt.Errorf("replicator: decode frame: %w", err)
	}
	return busmsg.New(wm.Command, wm.Params), nil
}
