// Package xdelta3 is a thin cgo binding over the system libxdelta3
// decoder, used to apply the binary delta patches served by the content
// system (spec §4.8, §9 "the xdelta3 decoder is a C library invoked
// through a thin binding"). No encoder is bound: this module is
// consume-only.
package xdelta3

/*
#cgo LDFLAGS: -lxdelta3
#include <stdlib.h>
#include <string.h>
#include <xdelta3.h>

static int x3_config_stream(xd3_stream *stream, xd3_config *cfg, int winsize, int flags) {
	memset(cfg, 0, sizeof(xd3_config));
	cfg->winsize = winsize;
	cfg->flags = flags;
	return xd3_config_stream(stream, cfg);
}
*/
import "C"

import (
	"fmt"
	"io"
	"unsafe"
)

// windowSize mirrors spec §4.8's "256 KiB window".
const windowSize = 256 * 1024

// SourceBlockSize is the block granularity the decoder requests via
// GETSRCBLK; it matches windowSize so one requested block always covers
// one decode window.
const SourceBlockSize = windowSize

// Source is the random-access reader the decoder pulls source blocks
// from (the file being patched).
type Source interface {
	io.ReaderAt
	Size() (int64, error)
}

// Decode streams diff through an xdelta3 decoder seeded from src,
// writing the reconstructed target bytes via write. write is called
// once per OUTPUT window with exactly the produced slice; it must not
// retain the slice past the call.
func Decode(diff io.Reader, src Source, write func([]byte) error) error {
	var stream C.xd3_stream
	var cfg C.xd3_config

	if ret := C.x3_config_stream(&stream, &cfg, C.int(windowSize), C.XD3_ADLER32); ret != 0 {
		return fmt.Errorf("xdelta3: config_stream failed: %d", ret)
	}
	defer C.xd3_free_stream(&stream)

	srcSize, err := src.Size()
	if err != nil {
		return err
	}

	var source C.xd3_source
	srcBuf := make([]byte, SourceBlockSize)
	source.blksize = C.usize_t(SourceBlockSize)
	source.curblk = (*C.uint8_t)(unsafe.Pointer(&srcBuf[0]))
	source.max_winsize = C.usize_t(windowSize)

	if err := fillSourceBlock(&source, src, srcBuf, 0, srcSize); err != nil {
		return err
	}
	C.xd3_set_source(&stream, &source)

	diffBuf := make([]byte, 64*1024)
	eof := false

	for {
		ret := C.xd3_decode_input(&stream)
		switch ret {
		case C.XD3_INPUT:
			if eof {
				return fmt.Errorf("xdelta3: decoder requested input past EOF")
			}
			n, rerr := io.ReadFull(diff, diffBuf)
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				eof = true
			} else if rerr != nil {
				return rerr
			}
			if n > 0 {
				C.xd3_avail_input(&stream, (*C.uint8_t)(unsafe.Pointer(&diffBuf[0])), C.usize_t(n))
			}
			if eof {
				C.xd3_set_flags(&stream, C.xd3_flags(C.int(stream.flags)|C.XD3_FLUSH))
			}

		case C.XD3_OUTPUT:
			out := C.GoBytes(unsafe.Pointer(stream.next_out), C.int(stream.avail_out))
			if err := write(out); err != nil {
				return err
			}
			C.xd3_consume_output(&stream)

		case C.XD3_GETSRCBLK:
			blkno := int64(source.getblkno)
			if err := fillSourceBlock(&source, src, srcBuf, blkno, srcSize); err != nil {
				return err
			}

		case C.XD3_GOTHEADER, C.XD3_WINSTART, C.XD3_WINFINISH:
			continue

		case 0:
			return nil

		default:
			msg := C.GoString(stream.msg)
			return fmt.Errorf("xdelta3: decode error: %s", msg)
		}
	}
}

func fillSourceBlock(source *C.xd3_source, src Source, buf []byte, blkno int64, srcSize int64) error {
	offset := blkno * SourceBlockSize
	n := SourceBlockSize
	if offset >= srcSize {
		n = 0
	} else if remaining := srcSize - offset; remaining < int64(n) {
		n = int(remaining)
	}
	if n > 0 {
		if _, err := src.ReadAt(buf[:n], offset); err != nil && err != io.EOF {
			return err
		}
	}
	source.curblkno = C.xoff_t(blkno)
	source.onblk = C.usize_t(n)
	return nil
}
