// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package wire

import (
	"bytes"
	"io"

	"github.com/calmh/xdr"
)

// Size bounds for XDR's length-prefixed strings/bytes. These are
// generous rather than exact; the frame layer enforces the real
// MaxFrameSize (default 1 GiB, §6) before a message ever reaches here.
const (
	maxPathLen          = 8192
	maxSymlinkTargetLen = 8192
	maxIgnoreStringLen  = 16 << 20
)

func (u Update) EncodeXDR(w io.Writer) (int, error) {
	xw := xdr.NewWriter(w)
	return u.encodeXDR(xw)
}

func (u Update) MarshalXDR() ([]byte, error) {
	var buf bytes.Buffer
	xw := xdr.NewWriter(&buf)
	_, err := u.encodeXDR(xw)
	return buf.Bytes(), err
}

func (u Update) encodeXDR(xw *xdr.Writer) (int, error) {
	if len(u.Path) > maxPathLen {
		return xw.Tot(), xdr.ErrElementSizeExceeded
	}
	xw.WriteString(u.Path)
	xw.WriteUint64(uint64(u.ModTime))
	xw.WriteBool(u.IsDirectory)
	if len(u.SymlinkTarget) > maxSymlinkTargetLen {
		return xw.Tot(), xdr.ErrElementSizeExceeded
	}
	xw.WriteString(u.SymlinkTarget)
	xw.WriteBool(u.IsExecutable)
	xw.WriteBool(u.Delete)
	xw.WriteBytes(u.Data)
	if len(u.IgnoreString) > maxIgnoreStringLen {
		return xw.Tot(), xdr.ErrElementSizeExceeded
	}
	xw.WriteString(u.IgnoreString)
	xw.WriteBool(u.Local)
	return xw.Tot(), xw.Error()
}

func (u *Update) DecodeXDR(r io.Reader) error {
	xr := xdr.NewReader(r)
	return u.decodeXDR(xr)
}

func (u *Update) UnmarshalXDR(bs []byte) error {
	xr := xdr.NewReader(bytes.NewReader(bs))
	return u.decodeXDR(xr)
}

func (u *Update) decodeXDR(xr *xdr.Reader) error {
	u.Path = xr.ReadStringMax(maxPathLen)
	u.ModTime = int64(xr.ReadUint64())
	u.IsDirectory = xr.ReadBool()
	u.SymlinkTarget = xr.ReadStringMax(maxSymlinkTargetLen)
	u.IsExecutable = xr.ReadBool()
	u.Delete = xr.ReadBool()
	u.Data = xr.ReadBytesMax(maxFrameBodyLen)
	u.IgnoreString = xr.ReadStringMax(maxIgnoreStringLen)
	u.Local = xr.ReadBool()
	return xr.Error()
}
