// Package status holds the fixed dictionary of album production statuses
// and the alias table used to resolve free-text phrasings to a canonical
// code. The dictionary is ordered; everything else in the system refers to
// statuses by id or canonical code and never invents new ones at runtime.
package status

import "strings"

type Status struct {
	ID      int    `json:"id"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

var all = []Status{
	{ID: 1, Code: "waiting", Display: "Waiting for materials"},
	{ID: 2, Code: "upload", Display: "Materials uploaded"},
	{ID: 3, Code: "production", Display: "In production"},
	{ID: 4, Code: "sent", Display: "Sent to customer"},
	{ID: 5, Code: "remarks", Display: "Remarks received"},
	{ID: 6, Code: "accepted", Display: "Accepted"},
	{ID: 7, Code: "pending", Display: "Pending"},
}

// aliases maps normalized human phrasings to canonical codes. Multiple
// phrasings map to one code; the Russian informal variants come from how
// studio managers actually write in project chats.
var aliases = map[string]string{
	"waiting":  "waiting",
	"wait":     "waiting",
	"ожидание": "waiting",
	"ожидаем":  "waiting",
	"ждем":     "waiting",
	"ждём":     "waiting",

	"upload":   "upload",
	"uploaded": "upload",
	"загрузка": "upload",
	"загружен": "upload",
	"залит":    "upload",

	"production":      "production",
	"in production":   "production",
	"производство":    "production",
	"в производстве":  "production",
	"в печати":        "production",
	"печать":          "production",

	"sent":       "sent",
	"отправлен":  "sent",
	"отправлено": "sent",
	"отправили":  "sent",

	"accepted": "accepted",
	"принят":   "accepted",
	"принято":  "accepted",
	"приняли":  "accepted",

	"remarks":      "remarks",
	"замечания":    "remarks",
	"правки":       "remarks",
	"на доработку": "remarks",

	"pending":  "pending",
	"отложен":  "pending",
	"отложено": "pending",
	"пауза":    "pending",
}

var (
	byCode = func() map[string]Status {
		m := make(map[string]Status, len(all))
		for _, s := range all {
			m[s.Code] = s
		}
		return m
	}()
	byID = func() map[int]Status {
		m := make(map[int]Status, len(all))
		for _, s := range all {
			m[s.ID] = s
		}
		return m
	}()
	maxAliasWords = func() int {
		max := 1
		for a := range aliases {
			if n := len(strings.Fields(a)); n > max {
				max = n
			}
		}
		return max
	}()
)

// All returns the dictionary in production order.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// ByCode resolves a canonical status code, case-insensitively.
func ByCode(code string) (Status, bool) {
	s, ok := byCode[strings.ToLower(strings.TrimSpace(code))]
	return s, ok
}

// ByID resolves a dictionary id.
func ByID(id int) (Status, bool) {
	s, ok := byID[id]
	return s, ok
}

// ByAlias resolves a normalized phrase to its status. Unknown phrases do
// not match; there is no fuzzy fallback.
func ByAlias(phrase string) (Status, bool) {
	code, ok := aliases[Normalize(phrase)]
	if !ok {
		return Status{}, false
	}
	return byCode[code], true
}

// Normalize lower-cases a phrase and collapses interior whitespace, which
// is the exact form the alias table is keyed by.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// MaxAliasWords is the longest alias length in words; the command parser
// uses it to bound its lookahead.
func MaxAliasWords() int {
	return maxAliasWords
}
