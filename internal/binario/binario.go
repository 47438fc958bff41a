// Package binario provides a minimal binary reader/writer used to encode
// and decode savestates. Every Write/Read method returns an error instead
// of panicking, so callers can fold several field writes together with
// errors.Join the way ines.Mapper007.SaveState does.
package binario

import (
	"encoding/binary"
	"io"
)

type Writer struct {
	w     io.Writer
	order binary.ByteOrder
}

func NewWriter(w io.Writer, order binary.ByteOrder) *Writer {
	return &Writer{w: w, order: order}
}

func (w *Writer) WriteUint8(v uint8) error {
	_, err := w.w.Write([]byte{v})
	return err
}

func (w *Writer) WriteUint16(v uint16) error {
	var buf [2]byte
	w.order.PutUint16(buf[:], v)
	_, err := w.w.Write(buf[:])
	return err
}

func (w *Writer) WriteUint32(v uint32) error {
	var buf [4]byte
	w.order.PutUint32(buf[:], v)
	_, err := w.w.Write(buf[:])
	return err
}

func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

func (w *Writer) WriteUint64(v uint64) error {
	var buf [8]byte
	w.order.PutUint64(buf[:], v)
	_, err := w.w.Write(buf[:])
	return err
}

func (w *Writer) WriteFloat32(v float32) error {
	return binary.Write(w.w, w.order, v)
}

func (w *Writer) WriteFloat64(v float64) error {
	return binary.Write(w.w, w.order, v)
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

func (w *Writer) WriteBytes(v []byte) error {
	if err := w.WriteUint32(uint32(len(v))); err != nil {
		return err
	}
	_, err := w.w.Write(v)
	return err
}

type Reader struct {
	r     io.Reader
	order binary.ByteOrder
}

func NewReader(r io.Reader, order binary.ByteOrder) *Reader {
	return &Reader{r: r, order: order}
}

func (r *Reader) ReadUint8To(v *uint8) error {
	var buf [1]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return err
	}
	*v = buf[0]
	return nil
}

func (r *Reader) ReadUint16To(v *uint16) error {
	var buf [2]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return err
	}
	*v = r.order.Uint16(buf[:])
	return nil
}

func (r *Reader) ReadUint32To(v *uint32) error {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return err
	}
	*v = r.order.Uint32(buf[:])
	return nil
}

func (r *Reader) ReadInt32To(v *int32) error {
	var u uint32
	if err := r.ReadUint32To(&u); err != nil {
		return err
	}
	*v = int32(u)
	return nil
}

func (r *Reader) ReadUint64To(v *uint64) error {
	var buf [8]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return err
	}
	*v = r.order.Uint64(buf[:])
	return nil
}

func (r *Reader) ReadFloat32To(v *float32) error {
	return binary.Read(r.r, r.order, v)
}

func (r *Reader) ReadFloat64To(v *float64) error {
	return binary.Read(r.r, r.order, v)
}

func (r *Reader) ReadBoolTo(v *bool) error {
	var b uint8
	if err := r.ReadUint8To(&b); err != nil {
		return err
	}
	*v = b != 0
	return nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	var n uint32
	if err := r.ReadUint32To(&n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
