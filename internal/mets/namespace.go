package mets

import "github.com/beevik/etree"

const (
	NamespaceMETS  = "http://www.loc.gov/METS/"
	NamespaceXLink = "http://www.w3.org/1999/xlink"
	NamespaceXSI   = "http://www.w3.org/2001/XMLSchema-instance"
)

// namespaceOf resolves the namespace URI bound to prefix at element e,
// walking up through the ancestors. The empty prefix resolves the default namespace.
func namespaceOf(e *etree.Element, prefix string) string {
	for cur := e; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if prefix == "" && a.Space == "" && a.Key == "xmlns" {
				return a.Value
			}
			if prefix != "" && a.Space == "xmlns" && a.Key == prefix {
				return a.Value
			}
		}
	}
	switch prefix {
	case "xml":
		return "http://www.w3.org/XML/1998/namespace"
	}
	return ""
}

// isElement reports whether e is the element {uri}local.
func isElement(e *etree.Element, uri, local string) bool {
	return e.Tag == local && namespaceOf(e, e.Space) == uri
}

// findAttr returns the index of the attribute {uri}local on e, or -1.
// Unprefixed attributes are only matched when uri is empty.
func findAttr(e *etree.Element, uri, local string) int {
	for i, a := range e.Attr {
		if a.Key != local || a.Space == "xmlns" {
			continue
		}
		if a.Space == "" {
			if uri == "" {
				return i
			}
			continue
		}
		if namespaceOf(e, a.Space) == uri {
			return i
		}
	}
	return -1
}

// prefixFor returns a prefix bound to uri in scope at e.
func prefixFor(e *etree.Element, uri string) (string, bool) {
	for cur := e; cur != nil; cur = cur.Parent() {
		for _, a := range cur.Attr {
			if a.Space == "xmlns" && a.Value == uri {
				return a.Key, true
			}
		}
	}
	return "", false
}
