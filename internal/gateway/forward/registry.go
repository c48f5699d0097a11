package forward

import (
	"sort"
	"strings"
)

// Registry は論理サービス名からベースURLへの対応表。
// 起動時に構築し、以後は読み取り専用として扱う。
type Registry map[string]string

// Lookup はサービス名に対応するベースURLを返す。
func (r Registry) Lookup(service string) (string, bool) {
	base, ok := r[service]
	if !ok {
		return "", false
	}
	return strings.TrimRight(base, "/"), true
}

// Names は登録済みのサービス名を昇順で返す。
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
