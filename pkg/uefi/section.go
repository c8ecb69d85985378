// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"unsafe"

	"golang.org/x/text/encoding/unicode"

	"github.com/linuxboot/fiano/pkg/compression"
	"github.com/linuxboot/fiano/pkg/guid"
	"github.com/linuxboot/fiano/pkg/log"
)

const (
	// SectionMinLength is the minimum length of a file section header.
	SectionMinLength = 0x04
	// SectionExtMinLength is the minimum length of an extended file section header.
	SectionExtMinLength = 0x08
)

// SectionType holds a section type value.
type SectionType uint8

// UEFI Section types.
const (
	SectionTypeAll                 SectionType = 0x00
	SectionTypeCompression         SectionType = 0x01
	SectionTypeGUIDDefined         SectionType = 0x02
	SectionTypeDisposable          SectionType = 0x03
	SectionTypePE32                SectionType = 0x10
	SectionTypePIC                 SectionType = 0x11
	SectionTypeTE                  SectionType = 0x12
	SectionTypeDXEDepEx            SectionType = 0x13
	SectionTypeVersion             SectionType = 0x14
	SectionTypeUserInterface       SectionType = 0x15
	SectionTypeCompatibility16     SectionType = 0x16
	SectionTypeFirmwareVolumeImage SectionType = 0x17
	SectionTypeFreeformSubtypeGUID SectionType = 0x18
	SectionTypeRaw                 SectionType = 0x19
	SectionTypePEIDepEx            SectionType = 0x1b
	SectionTypeMMDepEx             SectionType = 0x1c
)

var sectionNames = map[SectionType]string{
	SectionTypeCompression:         "EFI_SECTION_COMPRESSION",
	SectionTypeGUIDDefined:         "EFI_SECTION_GUID_DEFINED",
	SectionTypeDisposable:          "EFI_SECTION_DISPOSABLE",
	SectionTypePE32:                "EFI_SECTION_PE32",
	SectionTypePIC:                 "EFI_SECTION_PIC",
	SectionTypeTE:                  "EFI_SECTION_TE",
	SectionTypeDXEDepEx:            "EFI_SECTION_DXE_DEPEX",
	SectionTypeVersion:             "EFI_SECTION_VERSION",
	SectionTypeUserInterface:       "EFI_SECTION_USER_INTERFACE",
	SectionTypeCompatibility16:     "EFI_SECTION_COMPATIBILITY16",
	SectionTypeFirmwareVolumeImage: "EFI_SECTION_FIRMWARE_VOLUME_IMAGE",
	SectionTypeFreeformSubtypeGUID: "EFI_SECTION_FREEFORM_SUBTYPE_GUID",
	SectionTypeRaw:                 "EFI_SECTION_RAW",
	SectionTypePEIDepEx:            "EFI_SECTION_PEI_DEPEX",
	SectionTypeMMDepEx:             "EFI_SECTION_MM_DEPEX",
}

// GUIDEDSectionAttribute holds a GUIDED section attribute bitfield.
type GUIDEDSectionAttribute uint16

// UEFI GUIDED Section Attributes.
const (
	GUIDEDSectionProcessingRequired GUIDEDSectionAttribute = 0x01
	GUIDEDSectionAuthStatusValid    GUIDEDSectionAttribute = 0x02
)

// SectionHeader represents an EFI_COMMON_SECTION_HEADER.
type SectionHeader struct {
	Size [3]uint8 `json:"-"`
	Type SectionType
}

// SectionExtHeader represents an EFI_COMMON_SECTION_HEADER2.
type SectionExtHeader struct {
	SectionHeader
	ExtendedSize uint32 `json:"-"`
}

// sectionCompressionHeaderLen is the wire size of SectionCompressionHeader:
// a packed uint32 followed by a uint8, not unsafe.Sizeof's padded size.
const sectionCompressionHeaderLen = 5

// SectionCompressionHeader contains the type specific fields for an
// EFI_SECTION_COMPRESSION section.
type SectionCompressionHeader struct {
	UncompressedLength uint32
	CompressionType    uint8
}

// GetBinHeaderLen returns the length of the binary type specific header.
func (s *SectionCompressionHeader) GetBinHeaderLen() uint32 {
	return sectionCompressionHeaderLen
}

// SectionGUIDDefinedHeader contains the fields for a EFI_SECTION_GUID_DEFINED
// encapsulated section header.
type SectionGUIDDefinedHeader struct {
	GUID       guid.GUID
	DataOffset uint16
	Attributes uint16
}

// SectionGUIDDefined contains the type specific fields for a
// EFI_SECTION_GUID_DEFINED section.
type SectionGUIDDefined struct {
	SectionGUIDDefinedHeader

	// Metadata
	Compression string
}

// GetBinHeaderLen returns the length of the binary type specific header.
func (s *SectionGUIDDefined) GetBinHeaderLen() uint32 {
	return uint32(unsafe.Sizeof(s.SectionGUIDDefinedHeader))
}

// TypeHeader interface forces type specific headers to report their length.
type TypeHeader interface {
	GetBinHeaderLen() uint32
}

// TypeSpecificHeader is used for marshalling and unmarshalling from JSON.
type TypeSpecificHeader struct {
	Type   SectionType
	Header TypeHeader
}

var headerTypes = map[SectionType]func() TypeHeader{
	SectionTypeGUIDDefined: func() TypeHeader { return &SectionGUIDDefined{} },
	SectionTypeCompression: func() TypeHeader { return &SectionCompressionHeader{} },
}

// UnmarshalJSON unmarshals a TypeSpecificHeader struct and correctly deduces
// the type of the interface.
func (t *TypeSpecificHeader) UnmarshalJSON(b []byte) error {
	var getType struct {
		Type   SectionType
		Header json.RawMessage
	}
	if err := json.Unmarshal(b, &getType); err != nil {
		return err
	}
	factory, ok := headerTypes[getType.Type]
	if !ok {
		return fmt.Errorf("unknown TypeSpecificHeader type '%v', unable to unmarshal", getType.Type)
	}
	t.Type = getType.Type
	t.Header = factory()
	return json.Unmarshal(getType.Header, &t.Header)
}

// Section represents a Firmware File Section.
type Section struct {
	Header SectionExtHeader
	Type   string
	buf    []byte

	// Metadata for extraction and recovery.
	ExtractPath string
	FileOrder   int `json:"-"`

	// Type specific fields.
	TypeSpecific *TypeSpecificHeader `json:",omitempty"`

	// For EFI_SECTION_USER_INTERFACE.
	Name string `json:",omitempty"`

	// For EFI_SECTION_VERSION.
	VersionString string `json:",omitempty"`

	// For EFI_SECTION_DXE_DEPEX, EFI_SECTION_PEI_DEPEX and
	// EFI_SECTION_MM_DEPEX.
	DepEx []DepExOp `json:",omitempty"`

	// Encapsulated firmware.
	Encapsulated []*TypedFirmware `json:",omitempty"`

	AbsOffSet uint64 `json:"-"`

	action Action
}

// Position returns the absolute offset of the section within the image.
func (s *Section) Position() uint64 {
	return s.AbsOffSet
}

// Buf returns the buffer.
// Used mostly for things interacting with the Firmware interface.
func (s *Section) Buf() []byte {
	return s.buf
}

// SetBuf sets the buffer.
// Used mostly for things interacting with the Firmware interface.
func (s *Section) SetBuf(buf []byte) {
	s.buf = buf
}

// Body returns the section's payload, past its common header and any
// type-specific header. GUID-defined sections report their payload start
// via DataOffset rather than header length, since padding between the
// type-specific header and the data is legal.
func (s *Section) Body() []byte {
	buf := s.buf
	headerLen := uint64(4)
	if s.Header.Size == [3]uint8{0xFF, 0xFF, 0xFF} {
		headerLen = 8
	}
	if s.TypeSpecific != nil {
		if gd, ok := s.TypeSpecific.Header.(*SectionGUIDDefined); ok {
			headerLen = uint64(gd.DataOffset)
		} else {
			headerLen += uint64(s.TypeSpecific.Header.GetBinHeaderLen())
		}
	}
	if headerLen > uint64(len(buf)) {
		headerLen = uint64(len(buf))
	}
	return buf[headerLen:]
}

// Apply calls the visitor on the Section.
func (s *Section) Apply(v Visitor) error {
	return v.Visit(s)
}

// ApplyChildren calls the visitor on each child node of Section.
func (s *Section) ApplyChildren(v Visitor) error {
	for _, f := range s.Encapsulated {
		if err := f.Value.Apply(v); err != nil {
			return err
		}
	}
	return nil
}

// GetAction returns the Section's current reconstruction action.
func (s *Section) GetAction() Action {
	return s.action
}

// SetAction sets the Section's reconstruction action, cascading to every
// encapsulated child the same way File.SetAction does.
func (s *Section) SetAction(a Action) {
	s.action = a
	if a != Insert && a != Replace {
		return
	}
	for _, f := range s.Encapsulated {
		if ac, ok := f.Value.(Actionable); ok {
			ac.SetAction(a)
		}
	}
}

// SetType sets the section's binary and human-readable type fields, for
// sections built up programmatically rather than parsed from a buffer.
func (s *Section) SetType(t SectionType) {
	s.Header.Type = t
	if name, ok := sectionNames[t]; ok {
		s.Type = name
	}
}

// GenSecHeader generates a full binary header for the section data.
// It assumes that the passed in section struct already contains section data
// in the buffer, the section type in the Type field, and the type specific
// header in the TypeSpecific field. It modifies the calling Section.
func (s *Section) GenSecHeader() error {
	var err error
	// Calculate size.
	headerLen := uint32(SectionMinLength)
	if s.TypeSpecific != nil && s.TypeSpecific.Header != nil {
		headerLen += s.TypeSpecific.Header.GetBinHeaderLen()
	}
	s.Header.ExtendedSize = uint32(len(s.buf)) + headerLen
	if s.Header.ExtendedSize >= 0xFFFFFF {
		headerLen += 4
		s.Header.ExtendedSize += 4
	}

	switch s.Header.Type {
	case SectionTypeGUIDDefined:
		gd := s.TypeSpecific.Header.(*SectionGUIDDefined)
		gd.DataOffset = uint16(headerLen)
		tsh := new(bytes.Buffer)
		if err = binary.Write(tsh, binary.LittleEndian, &gd.SectionGUIDDefinedHeader); err != nil {
			return err
		}
		s.buf = append(tsh.Bytes(), s.buf...)
	case SectionTypeCompression:
		ch := s.TypeSpecific.Header.(*SectionCompressionHeader)
		tsh := new(bytes.Buffer)
		if err = binary.Write(tsh, binary.LittleEndian, ch); err != nil {
			return err
		}
		s.buf = append(tsh.Bytes(), s.buf...)
	}

	// Append common header.
	s.Header.Size = Write3Size(uint64(s.Header.ExtendedSize))
	h := new(bytes.Buffer)
	if s.Header.ExtendedSize >= 0xFFFFFF {
		err = binary.Write(h, binary.LittleEndian, &s.Header)
	} else {
		err = binary.Write(h, binary.LittleEndian, &s.Header.SectionHeader)
	}
	if err != nil {
		return err
	}
	s.buf = append(h.Bytes(), s.buf...)
	return nil
}

// Assemble assembles the Section.
func (s *Section) Assemble() ([]byte, error) {
	if s.action == NoAction || s.action == DoNotRebuild {
		return s.buf, nil
	}

	var err error
	if len(s.Encapsulated) == 0 {
		if s.ExtractPath != "" {
			s.buf, err = ioutil.ReadFile(s.ExtractPath)
			if err != nil {
				return nil, err
			}
		}
		return s.buf, nil
	}

	// Assemble the Encapsulated elements.
	secData := []byte{}
	dLen := uint64(0)
	for _, es := range s.Encapsulated {
		for count := Align4(dLen) - dLen; count > 0; count-- {
			secData = append(secData, 0x00)
		}
		dLen = Align4(dLen)

		esData, err := es.Value.Assemble()
		if err != nil {
			return nil, err
		}
		dLen += uint64(len(esData))
		secData = append(secData, esData...)
	}

	switch s.Header.Type {
	case SectionTypeGUIDDefined:
		ts := s.TypeSpecific.Header.(*SectionGUIDDefined)
		if ts.Attributes&uint16(GUIDEDSectionProcessingRequired) != 0 {
			c := compression.CompressorFromGUID(&ts.GUID)
			if c == nil {
				return nil, fmt.Errorf("unknown guid defined section %v, should not have encapsulated sections", s)
			}
			if s.buf, err = c.Encode(secData); err != nil {
				return nil, err
			}
		} else {
			s.buf = secData
		}
	case SectionTypeCompression:
		ch := s.TypeSpecific.Header.(*SectionCompressionHeader)
		ch.UncompressedLength = uint32(len(secData))
		if c := compression.StandardCompressorFromType(ch.CompressionType); c != nil {
			if s.buf, err = c.Encode(secData); err != nil {
				return nil, err
			}
		} else {
			s.buf = secData
		}
	default:
		s.buf = secData
	}

	if err := s.GenSecHeader(); err != nil {
		return nil, err
	}
	return s.buf, nil
}

// Validate File Section.
func (s *Section) Validate() []error {
	errs := make([]error, 0)
	buflen := uint32(len(s.buf))
	blankSize := [3]uint8{0xFF, 0xFF, 0xFF}

	sh := &s.Header
	if sh.Size == blankSize {
		if buflen < SectionExtMinLength {
			errs = append(errs, fmt.Errorf("section length too small, buffer is only %#x bytes long for extended header",
				buflen))
			return errs
		}
	} else if uint32(Read3Size(s.Header.Size)) != sh.ExtendedSize {
		errs = append(errs, errors.New("section size not copied into extendedsize"))
		return errs
	}
	if buflen != sh.ExtendedSize {
		errs = append(errs, fmt.Errorf("section size mismatch: size is %#x, buf length is %#x",
			sh.ExtendedSize, buflen))
		return errs
	}

	return errs
}

// DecodeUCS2 decodes a NUL-terminated UCS-2LE byte string, as used by the
// User Interface and Version sections, into a UTF-8 Go string.
func DecodeUCS2(buf []byte) string {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(buf)
	if err != nil {
		return ""
	}
	// Strip the trailing UCS-2 NUL terminator, if present.
	if len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return string(out)
}

// EncodeUCS2 encodes a Go string into a NUL-terminated UCS-2LE byte
// string, the inverse of DecodeUCS2.
func EncodeUCS2(s string) []byte {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return append(out, 0x00, 0x00)
}

// DepExOp is a single opcode in a dependency expression section
// (EFI_SECTION_DXE_DEPEX/PEI_DEPEX/MM_DEPEX). GUID is only set for PUSH,
// BEFORE and AFTER.
type DepExOp struct {
	OpCode string
	GUID   *guid.GUID `json:",omitempty"`
}

// DepExNamesToOpCodes maps the human readable opcode name to the binary
// opcode defined in the UEFI PI Specification, Vol. 2, section 10.3.
var DepExNamesToOpCodes = map[string]byte{
	"BEFORE": 0x00,
	"AFTER":  0x01,
	"PUSH":   0x02,
	"AND":    0x03,
	"OR":     0x04,
	"NOT":    0x05,
	"TRUE":   0x06,
	"FALSE":  0x07,
	"END":    0x08,
	"SOR":    0x09,
}

var depExOpCodesToNames = func() map[byte]string {
	m := make(map[byte]string, len(DepExNamesToOpCodes))
	for name, op := range DepExNamesToOpCodes {
		m[op] = name
	}
	return m
}()

// parseDepEx decodes the binary opcode stream of a dependency expression
// section into a sequence of DepExOp. It returns an error if the stream
// does not end in END or a GUID operand runs past the end of buf.
func parseDepEx(buf []byte) ([]DepExOp, error) {
	var ops []DepExOp
	for i := 0; i < len(buf); i++ {
		name, ok := depExOpCodesToNames[buf[i]]
		if !ok {
			return nil, fmt.Errorf("unknown depex opcode %#x", buf[i])
		}
		op := DepExOp{OpCode: name}
		switch name {
		case "PUSH", "BEFORE", "AFTER":
			if i+1+guid.Size > len(buf) {
				return nil, fmt.Errorf("depex opcode %v truncated guid operand", name)
			}
			g := guid.GUID{}
			copy(g[:], buf[i+1:i+1+guid.Size])
			op.GUID = &g
			i += guid.Size
		}
		ops = append(ops, op)
		if name == "END" {
			return ops, nil
		}
	}
	return nil, errors.New("invalid DEPEX, no END")
}

// EncodeDepEx encodes a dependency expression opcode sequence back into
// the binary opcode stream carried by a Section's buffer, the inverse of
// parseDepEx.
func EncodeDepEx(ops []DepExOp) ([]byte, error) {
	var buf []byte
	for _, op := range ops {
		opcode, ok := DepExNamesToOpCodes[op.OpCode]
		if !ok {
			return nil, fmt.Errorf("unable to map depex opcode string to opcode, string was: %v", op.OpCode)
		}
		buf = append(buf, opcode)
		switch op.OpCode {
		case "PUSH", "BEFORE", "AFTER":
			if op.GUID == nil {
				return nil, fmt.Errorf("depex opcode %v must not have nil guid", op.OpCode)
			}
			buf = append(buf, op.GUID[:]...)
		default:
			if op.GUID != nil {
				return nil, fmt.Errorf("depex opcode %v must not have a guid! got %v", op.OpCode, *op.GUID)
			}
		}
	}
	return buf, nil
}

// NewSection parses a sequence of bytes and returns a Section
// object, if a valid one is passed, or an error.
func NewSection(buf []byte, fileOrder int) (*Section, error) {
	s := Section{FileOrder: fileOrder}
	r := bytes.NewReader(buf)
	if err := binary.Read(r, binary.LittleEndian, &s.Header.SectionHeader); err != nil {
		return nil, err
	}

	if t, ok := sectionNames[s.Header.Type]; ok {
		s.Type = t
	}

	headerSize := uint64(unsafe.Sizeof(SectionHeader{}))
	if s.Header.Size == [3]uint8{0xFF, 0xFF, 0xFF} {
		if err := binary.Read(r, binary.LittleEndian, &s.Header.ExtendedSize); err != nil {
			return nil, err
		}
		if s.Header.ExtendedSize == 0xFFFFFFFF {
			return nil, errors.New("section size and extended size are all FFs, there should not be free space inside a file")
		}
		headerSize = uint64(unsafe.Sizeof(SectionExtHeader{}))
	} else {
		s.Header.ExtendedSize = uint32(Read3Size(s.Header.Size))
	}

	if buflen := len(buf); int(s.Header.ExtendedSize) > buflen {
		return nil, fmt.Errorf("section size mismatch, section has size %v, but buffer is %v bytes big",
			s.Header.ExtendedSize, buflen)
	}
	s.buf = buf[:s.Header.ExtendedSize]

	switch s.Header.Type {
	case SectionTypeGUIDDefined:
		typeSpec := &SectionGUIDDefined{}
		if err := binary.Read(r, binary.LittleEndian, &typeSpec.SectionGUIDDefinedHeader); err != nil {
			return nil, err
		}
		s.TypeSpecific = &TypeSpecificHeader{Type: SectionTypeGUIDDefined, Header: typeSpec}

		var encapBuf []byte
		if typeSpec.Attributes&uint16(GUIDEDSectionProcessingRequired) != 0 {
			var err error
			if c := compression.CompressorFromGUID(&typeSpec.GUID); c != nil {
				typeSpec.Compression = c.Name()
				encapBuf, err = c.Decode(buf[typeSpec.DataOffset:s.Header.ExtendedSize])
			} else {
				typeSpec.Compression = "UNKNOWN"
			}
			if err != nil {
				log.Errorf("error decoding GUID defined section %v: %v", typeSpec.GUID, err)
				typeSpec.Compression = "UNKNOWN"
				encapBuf = []byte{}
			}
		} else {
			encapBuf = buf[typeSpec.DataOffset:s.Header.ExtendedSize]
		}

		for i, offset := 0, uint64(0); offset < uint64(len(encapBuf)); i++ {
			encapS, err := NewSection(encapBuf[offset:], i)
			if err != nil {
				return nil, fmt.Errorf("error parsing encapsulated section #%d at offset %d: %v",
					i, offset, err)
			}
			// The PI Spec doesn't mandate an alignment here, but every
			// FFS producer in the wild aligns encapsulated sections to 4
			// bytes, so we do too.
			offset = Align4(offset + uint64(encapS.Header.ExtendedSize))
			s.Encapsulated = append(s.Encapsulated, MakeTyped(encapS))
		}

	case SectionTypeCompression:
		ch := &SectionCompressionHeader{}
		if err := binary.Read(r, binary.LittleEndian, ch); err != nil {
			return nil, err
		}
		s.TypeSpecific = &TypeSpecificHeader{Type: SectionTypeCompression, Header: ch}

		compDataOffset := headerSize + sectionCompressionHeaderLen
		var encapBuf []byte
		if c := compression.StandardCompressorFromType(ch.CompressionType); c != nil {
			var err error
			encapBuf, err = c.Decode(buf[compDataOffset:s.Header.ExtendedSize])
			if err != nil {
				log.Errorf("error decoding compressed section: %v", err)
				encapBuf = []byte{}
			}
		} else {
			encapBuf = buf[compDataOffset:s.Header.ExtendedSize]
		}

		for i, offset := 0, uint64(0); offset < uint64(len(encapBuf)); i++ {
			encapS, err := NewSection(encapBuf[offset:], i)
			if err != nil {
				return nil, fmt.Errorf("error parsing compressed section #%d at offset %d: %v",
					i, offset, err)
			}
			offset = Align4(offset + uint64(encapS.Header.ExtendedSize))
			s.Encapsulated = append(s.Encapsulated, MakeTyped(encapS))
		}

	case SectionTypeUserInterface:
		s.Name = DecodeUCS2(s.buf[headerSize:])

	case SectionTypeVersion:
		if headerSize+2 <= uint64(len(s.buf)) {
			s.VersionString = DecodeUCS2(s.buf[headerSize+2:])
		}

	case SectionTypeDXEDepEx, SectionTypePEIDepEx, SectionTypeMMDepEx:
		depEx, err := parseDepEx(s.buf[headerSize:])
		if err != nil {
			return nil, err
		}
		s.DepEx = depEx

	case SectionTypeFirmwareVolumeImage:
		fv, err := NewFirmwareVolume(s.buf[headerSize:], 0, false)
		if err != nil {
			return nil, err
		}
		s.Encapsulated = []*TypedFirmware{MakeTyped(fv)}
	}

	return &s, nil
}
