package util

import (
	"encoding/binary"
)

// ConvertUInt4Bytes 将uint32转换为4个字节
func ConvertUInt4Bytes(value uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return buf
}

// ConvertInt4Bytes 将int32转换为4个字节
func ConvertInt4Bytes(value int32) []byte {
	return ConvertUInt4Bytes(uint32(value))
}

// ConvertULong8Bytes 将uint64转换为8个字节
func ConvertULong8Bytes(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}

// ReadUInt4Byte 从字节切片读取uint32
func ReadUInt4Byte(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data)
}

// ReadInt4Byte 从字节切片读取int32
func ReadInt4Byte(data []byte) int32 {
	return int32(binary.LittleEndian.Uint32(data))
}

// ReadULong8Byte 从字节切片读取uint64
func ReadULong8Byte(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data)
}

// WriteUInt4 在指定偏移处写入uint32
func WriteUInt4(data []byte, offset int, value uint32) {
	binary.LittleEndian.PutUint32(data[offset:], value)
}

// WriteInt4 在指定偏移处写入int32
func WriteInt4(data []byte, offset int, value int32) {
	binary.LittleEndian.PutUint32(data[offset:], uint32(value))
}

// WriteUInt2 在指定偏移处写入uint16
func WriteUInt2(data []byte, offset int, value uint16) {
	binary.LittleEndian.PutUint16(data[offset:], value)
}

// WriteULong8 在指定偏移处写入uint64
func WriteULong8(data []byte, offset int, value uint64) {
	binary.LittleEndian.PutUint64(data[offset:], value)
}

// ReadUInt4 从指定偏移处读取uint32
func ReadUInt4(data []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(data[offset:])
}

// ReadInt4 从指定偏移处读取int32
func ReadInt4(data []byte, offset int) int32 {
	return int32(binary.LittleEndian.Uint32(data[offset:]))
}

// ReadUInt2 从指定偏移处读取uint16
func ReadUInt2(data []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(data[offset:])
}

// ReadULong8 从指定偏移处读取uint64
func ReadULong8(data []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(data[offset:])
}
