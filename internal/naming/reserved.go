package naming

import "strings"

// reservedTypeWords contains GraphQL keywords, built-in types and the fixed
// types every generated schema carries.
var reservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	"int":     true,
	"float":   true,
	"string":  true,
	"boolean": true,
	"id":      true,

	"true":  true,
	"false": true,
	"null":  true,

	"entity":         true,
	"modelinfo":      true,
	"modelmember":    true,
	"orderdirection": true,
	"pageinfo":       true,
	"felt":           true,
	"bigint":         true,
	"uint32":         true,
	"bytes":          true,
	"nonnegativeint": true,
}

// reservedQueryFields are root query fields that are always present.
var reservedQueryFields = map[string]bool{
	"entity": true,
	"models": true,
}

func isReservedTypeName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	return reservedTypeWords[lowerName]
}

func isReservedQueryField(name string) bool {
	if strings.HasPrefix(name, "__") {
		return true
	}
	return reservedQueryFields[name]
}
