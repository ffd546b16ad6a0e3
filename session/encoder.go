package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionV1 = 1

// Encode serializes s into the v1 binary layout:
//
//	version(1) accountLen(1) account createdAt(8) lastUsedAt(8) expiresAt(8)
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if len(s.AccountID) == 0 || len(s.AccountID) > 255 {
		return nil, errors.New("accountID length out of range")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(s.AccountID) + 24)

	buf.WriteByte(sessionFormatVersionV1)
	buf.WriteByte(byte(len(s.AccountID)))
	buf.WriteString(s.AccountID)

	for _, v := range []int64{s.CreatedAt, s.LastUsedAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. SessionID is not part of the
// payload and is left empty.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionV1 {
		return nil, errors.New("unsupported session version")
	}

	n, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	account := make([]byte, n)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, err
	}

	s := &Session{AccountID: string(account)}
	for _, dst := range []*int64{&s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}
