package stm32

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC16/MODBUS of data in the device's Hi/Lo table convention: the
// high byte is the first byte on the wire. Appending it big-endian therefore yields the
// standard Modbus low-byte-first transmission order.
func Checksum(data []byte) uint16 {
	crc := crc16.Checksum(data, crcTable)
	return crc<<8 | crc>>8
}
