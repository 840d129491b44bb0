package wire

import (
	"encoding/binary"
	"math"
)

func putF32(buf []byte, v float32) { binary.LittleEndian.PutUint32(buf, math.Float32bits(v)) }
func getF32(buf []byte) float32    { return math.Float32frombits(binary.LittleEndian.Uint32(buf)) }

func (h Heartbeat) marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, h.PingMS)
	return buf
}

func unmarshalHeartbeat(b []byte) (Heartbeat, error) {
	if len(b) < 4 {
		return Heartbeat{}, ErrInvalidBody
	}
	return Heartbeat{PingMS: binary.LittleEndian.Uint32(b)}, nil
}

func (c ClientInfo) marshal() []byte {
	buf := make([]byte, 13)
	binary.LittleEndian.PutUint32(buf[0:4], c.ClientID)
	binary.LittleEndian.PutUint32(buf[4:8], c.ProtocolVersion)
	binary.LittleEndian.PutUint16(buf[8:10], c.ScreenWidth)
	binary.LittleEndian.PutUint16(buf[10:12], c.ScreenHeight)
	buf[12] = c.GameID
	return buf
}

func unmarshalClientInfo(b []byte) (ClientInfo, error) {
	if len(b) < 13 {
		return ClientInfo{}, ErrInvalidBody
	}
	return ClientInfo{
		ClientID:        binary.LittleEndian.Uint32(b[0:4]),
		ProtocolVersion: binary.LittleEndian.Uint32(b[4:8]),
		ScreenWidth:     binary.LittleEndian.Uint16(b[8:10]),
		ScreenHeight:    binary.LittleEndian.Uint16(b[10:12]),
		GameID:          b[12],
	}, nil
}

func (s ServerInfo) marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], s.ServerID)
	binary.LittleEndian.PutUint32(buf[4:8], s.ProtocolVersion)
	putF32(buf[8:12], s.ModelVersion)
	buf[12] = s.MaxClients
	binary.LittleEndian.PutUint16(buf[13:15], s.MaxFPS)
	buf[15] = s.Status
	return buf
}

func unmarshalServerInfo(b []byte) (ServerInfo, error) {
	if len(b) < 16 {
		return ServerInfo{}, ErrInvalidBody
	}
	return ServerInfo{
		ServerID:        binary.LittleEndian.Uint32(b[0:4]),
		ProtocolVersion: binary.LittleEndian.Uint32(b[4:8]),
		ModelVersion:    getF32(b[8:12]),
		MaxClients:      b[12],
		MaxFPS:          binary.LittleEndian.Uint16(b[13:15]),
		Status:          b[15],
	}, nil
}

func (f FrameDataBody) marshal() []byte {
	buf := make([]byte, 17+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], f.FrameID)
	binary.LittleEndian.PutUint64(buf[4:12], f.TimestampMS)
	binary.LittleEndian.PutUint16(buf[12:14], f.Width)
	binary.LittleEndian.PutUint16(buf[14:16], f.Height)
	if f.Keyframe {
		buf[16] = 1
	}
	copy(buf[17:], f.Payload)
	return buf
}

func unmarshalFrameData(b []byte) (FrameDataBody, error) {
	if len(b) < 17 {
		return FrameDataBody{}, ErrInvalidBody
	}
	payload := make([]byte, len(b)-17)
	copy(payload, b[17:])
	return FrameDataBody{
		FrameID:     binary.LittleEndian.Uint32(b[0:4]),
		TimestampMS: binary.LittleEndian.Uint64(b[4:12]),
		Width:       binary.LittleEndian.Uint16(b[12:14]),
		Height:      binary.LittleEndian.Uint16(b[14:16]),
		Keyframe:    b[16] != 0,
		Payload:     payload,
	}, nil
}

func marshalDetectionRecord(buf []byte, d DetectionRecord) {
	putF32(buf[0:4], d.X)
	putF32(buf[4:8], d.Y)
	putF32(buf[8:12], d.W)
	putF32(buf[12:16], d.H)
	putF32(buf[16:20], d.Confidence)
	buf[20] = d.ClassID
	binary.LittleEndian.PutUint32(buf[21:25], d.TrackID)
	binary.LittleEndian.PutUint64(buf[25:33], d.TimestampMS)
}

func unmarshalDetectionRecord(b []byte) DetectionRecord {
	return DetectionRecord{
		X:           getF32(b[0:4]),
		Y:           getF32(b[4:8]),
		W:           getF32(b[8:12]),
		H:           getF32(b[12:16]),
		Confidence:  getF32(b[16:20]),
		ClassID:     b[20],
		TrackID:     binary.LittleEndian.Uint32(b[21:25]),
		TimestampMS: binary.LittleEndian.Uint64(b[25:33]),
	}
}

func (d DetectionResult) marshal() []byte {
	buf := make([]byte, 14+len(d.Detections)*DetectionRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], d.FrameID)
	binary.LittleEndian.PutUint64(buf[4:12], d.TimestampMS)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(len(d.Detections)))
	off := 14
	for _, rec := range d.Detections {
		marshalDetectionRecord(buf[off:off+DetectionRecordSize], rec)
		off += DetectionRecordSize
	}
	return buf
}

func unmarshalDetectionResult(b []byte) (DetectionResult, error) {
	if len(b) < 14 {
		return DetectionResult{}, ErrInvalidBody
	}
	count := int(binary.LittleEndian.Uint16(b[12:14]))
	need := 14 + count*DetectionRecordSize
	if len(b) < need {
		return DetectionResult{}, ErrInvalidBody
	}
	out := DetectionResult{
		FrameID:     binary.LittleEndian.Uint32(b[0:4]),
		TimestampMS: binary.LittleEndian.Uint64(b[4:12]),
		Detections:  make([]DetectionRecord, count),
	}
	off := 14
	for i := 0; i < count; i++ {
		out.Detections[i] = unmarshalDetectionRecord(b[off : off+DetectionRecordSize])
		off += DetectionRecordSize
	}
	return out, nil
}

func (e ErrorBody) marshal() []byte {
	msg := []byte(e.Message)
	buf := make([]byte, 3+len(msg))
	buf[0] = e.ErrorCode
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(msg)))
	copy(buf[3:], msg)
	return buf
}

func unmarshalError(b []byte) (ErrorBody, error) {
	if len(b) < 3 {
		return ErrorBody{}, ErrInvalidBody
	}
	n := int(binary.LittleEndian.Uint16(b[1:3]))
	if len(b) < 3+n {
		return ErrorBody{}, ErrInvalidBody
	}
	return ErrorBody{ErrorCode: b[0], Message: string(b[3 : 3+n])}, nil
}

func (c CommandBody) marshal() []byte {
	buf := make([]byte, 3+len(c.Data))
	buf[0] = byte(c.CommandType)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(c.Data)))
	copy(buf[3:], c.Data)
	return buf
}

func unmarshalCommand(b []byte) (CommandBody, error) {
	if len(b) < 3 {
		return CommandBody{}, ErrInvalidBody
	}
	n := int(binary.LittleEndian.Uint16(b[1:3]))
	if len(b) < 3+n {
		return CommandBody{}, ErrInvalidBody
	}
	data := make([]byte, n)
	copy(data, b[3:3+n])
	return CommandBody{CommandType: CommandType(b[0]), Data: data}, nil
}

func (a AckBody) marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, a.AckedSequence)
	return buf
}

func unmarshalAck(b []byte) (AckBody, error) {
	if len(b) < 4 {
		return AckBody{}, ErrInvalidBody
	}
	return AckBody{AckedSequence: binary.LittleEndian.Uint32(b)}, nil
}
