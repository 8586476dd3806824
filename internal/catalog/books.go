package catalog

import "strings"

// usfmBooks lists the USFM book identifiers the upstream addresses chapters by.
var usfmBooks = map[string]struct{}{
	"GEN": {}, "EXO": {}, "LEV": {}, "NUM": {}, "DEU": {}, "JOS": {}, "JDG": {}, "RUT": {},
	"1SA": {}, "2SA": {}, "1KI": {}, "2KI": {}, "1CH": {}, "2CH": {}, "EZR": {}, "NEH": {},
	"EST": {}, "JOB": {}, "PSA": {}, "PRO": {}, "ECC": {}, "SNG": {}, "ISA": {}, "JER": {},
	"LAM": {}, "EZK": {}, "DAN": {}, "HOS": {}, "JOL": {}, "AMO": {}, "OBA": {}, "JON": {},
	"MIC": {}, "NAM": {}, "HAB": {}, "ZEP": {}, "HAG": {}, "ZEC": {}, "MAL": {},
	"MAT": {}, "MRK": {}, "LUK": {}, "JHN": {}, "ACT": {}, "ROM": {}, "1CO": {}, "2CO": {},
	"GAL": {}, "EPH": {}, "PHP": {}, "COL": {}, "1TH": {}, "2TH": {}, "1TI": {}, "2TI": {},
	"TIT": {}, "PHM": {}, "HEB": {}, "JAS": {}, "1PE": {}, "2PE": {}, "1JN": {}, "2JN": {},
	"3JN": {}, "JUD": {}, "REV": {},
	// Deuterocanonical books.
	"TOB": {}, "JDT": {}, "ESG": {}, "WIS": {}, "SIR": {}, "BAR": {}, "LJE": {}, "S3Y": {},
	"SUS": {}, "BEL": {}, "1MA": {}, "2MA": {}, "3MA": {}, "4MA": {}, "1ES": {}, "2ES": {},
	"MAN": {}, "PS2": {}, "DAG": {},
}

// KnownBook reports whether book is a USFM book identifier, ignoring case.
func KnownBook(book string) bool {
	_, ok := usfmBooks[strings.ToUpper(book)]

	return ok
}
