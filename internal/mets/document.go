// Package mets is the in-memory model of a METS metadata document. One DOM is
// used for reading, mutation, normalization and serialization.
package mets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`
	indentSpaces   = 2

	attrID           = "ID"
	attrSize         = "SIZE"
	attrChecksum     = "CHECKSUM"
	attrChecksumType = "CHECKSUMTYPE"
	attrHref         = "href"
	attrSchemaLoc    = "schemaLocation"
)

var (
	ErrEmptyDocument = errors.New("mets: document has no root element")
	ErrNotMETS       = errors.New("mets: root element is not {" + NamespaceMETS + "}mets")
)

// Document owns the parsed tree and the ordered list of file entries.
type Document struct {
	doc     *etree.Document
	root    *etree.Element
	entries []*FileEntry
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a Document from raw bytes. Any existing XML declaration is
// dropped; Bytes writes a canonical one. Documents declaring a non-UTF-8
// encoding are decoded on the way in.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("mets: parse: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, ErrEmptyDocument
	}
	if !isElement(root, NamespaceMETS, "mets") {
		return nil, ErrNotMETS
	}

	for i := len(doc.Child) - 1; i >= 0; i-- {
		if pi, ok := doc.Child[i].(*etree.ProcInst); ok && pi.Target == "xml" {
			doc.RemoveChildAt(i)
		}
	}

	d := &Document{doc: doc, root: root}
	d.collect(root)
	return d, nil
}

// charsetReader decodes any IANA-registered charset to UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("encoding %q is not supported", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func (d *Document) collect(e *etree.Element) {
	for _, child := range e.ChildElements() {
		if isElement(child, NamespaceMETS, "file") {
			d.entries = append(d.entries, newFileEntry(child))
		}
		d.collect(child)
	}
}

// Entries returns the file entries in document order.
func (d *Document) Entries() []*FileEntry {
	return d.entries
}

// SchemaLocation returns the root's xsi:schemaLocation value.
func (d *Document) SchemaLocation() string {
	if i := findAttr(d.root, NamespaceXSI, attrSchemaLoc); i >= 0 {
		return d.root.Attr[i].Value
	}
	return ""
}

// SetSchemaLocation points xsi:schemaLocation at the METS namespace and
// schemaFile, declaring the xsi prefix on the root if needed.
func (d *Document) SetSchemaLocation(schemaFile string) {
	value := NamespaceMETS + " " + schemaFile
	if i := findAttr(d.root, NamespaceXSI, attrSchemaLoc); i >= 0 {
		d.root.Attr[i].Value = value
		return
	}

	prefix, ok := prefixFor(d.root, NamespaceXSI)
	if !ok {
		prefix = "xsi"
		for namespaceOf(d.root, prefix) != "" {
			prefix += "x"
		}
		d.root.CreateAttr("xmlns:"+prefix, NamespaceXSI)
	}
	d.root.CreateAttr(prefix+":"+attrSchemaLoc, value)
}

// Bytes serializes the document with a UTF-8 declaration and two-space
// indentation. Serializing an unchanged document twice yields identical bytes.
func (d *Document) Bytes() ([]byte, error) {
	d.doc.Indent(indentSpaces)
	body, err := d.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("mets: serialize: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(xmlDeclaration) + 2)
	buf.WriteString(xmlDeclaration)
	buf.WriteByte('\n')
	buf.Write(bytes.TrimSpace(body))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// FileEntry is one mets:file element and its location element.
type FileEntry struct {
	elem    *etree.Element
	flocat  *etree.Element
	hrefIdx int
}

func newFileEntry(elem *etree.Element) *FileEntry {
	fe := &FileEntry{elem: elem, hrefIdx: -1}
	fe.flocat = findLocation(elem)
	if fe.flocat != nil {
		fe.hrefIdx = findAttr(fe.flocat, NamespaceXLink, attrHref)
	}
	return fe
}

// findLocation returns the first mets:FLocat below file, without descending
// into nested mets:file elements.
func findLocation(file *etree.Element) *etree.Element {
	for _, child := range file.ChildElements() {
		if isElement(child, NamespaceMETS, "FLocat") {
			return child
		}
	}
	for _, child := range file.ChildElements() {
		if isElement(child, NamespaceMETS, "file") {
			continue
		}
		if loc := findLocation(child); loc != nil {
			return loc
		}
	}
	return nil
}

// ID returns the entry's ID attribute.
func (f *FileEntry) ID() string {
	return f.elem.SelectAttrValue(attrID, "")
}

// HasLocation reports whether the entry carries an FLocat with an xlink:href.
func (f *FileEntry) HasLocation() bool {
	return f.flocat != nil && f.hrefIdx >= 0 && strings.TrimSpace(f.flocat.Attr[f.hrefIdx].Value) != ""
}

// Href returns the raw xlink:href value.
func (f *FileEntry) Href() string {
	if f.flocat == nil || f.hrefIdx < 0 {
		return ""
	}
	return f.flocat.Attr[f.hrefIdx].Value
}

// SetHref rewrites the xlink:href value. It is a no-op for entries without a location.
func (f *FileEntry) SetHref(v string) {
	if f.flocat == nil || f.hrefIdx < 0 {
		return
	}
	f.flocat.Attr[f.hrefIdx].Value = v
}

// SizeAttr returns the raw SIZE attribute.
func (f *FileEntry) SizeAttr() string {
	return f.elem.SelectAttrValue(attrSize, "")
}

// Size parses SIZE. ok is false if the attribute is missing or malformed.
func (f *FileEntry) Size() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(f.SizeAttr()), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (f *FileEntry) SetSize(n int64) {
	f.elem.CreateAttr(attrSize, strconv.FormatInt(n, 10))
}

func (f *FileEntry) Checksum() string {
	return f.elem.SelectAttrValue(attrChecksum, "")
}

func (f *FileEntry) SetChecksum(v string) {
	f.elem.CreateAttr(attrChecksum, v)
}

func (f *FileEntry) ChecksumType() string {
	return f.elem.SelectAttrValue(attrChecksumType, "")
}

func (f *FileEntry) SetChecksumType(v string) {
	f.elem.CreateAttr(attrChecksumType, v)
}
