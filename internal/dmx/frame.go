package dmx

import "encoding/binary"

// USB-serial DMX widget framing:
// [0x7E][label][lenLSB][lenMSB][start code][512 slots][0xE7]
const (
	frameStart     = 0x7E
	labelSendDMX   = 0x06
	frameEnd       = 0xE7
	dmxStartCode   = 0x00
	serialDataLen  = Channels + 1 // start code + slots
	serialFrameLen = 4 + serialDataLen + 1
)

// EncodeSerialFrame builds the vendor "send DMX" message for f.
func EncodeSerialFrame(f Frame) []byte {
	frame := make([]byte, serialFrameLen)

	frame[0] = frameStart
	frame[1] = labelSendDMX
	binary.LittleEndian.PutUint16(frame[2:4], serialDataLen)
	frame[4] = dmxStartCode
	copy(frame[5:5+Channels], f[:])
	frame[serialFrameLen-1] = frameEnd

	return frame
}
