package executor

// PathMapper redirects file reads from one path to another. Every key is an
// ordinary path, including names such as "hasOwnProperty".
type PathMapper struct {
	replacements map[string]string
}

// NewPathMapper copies replacements.
func NewPathMapper(replacements map[string]string) *PathMapper {
	m := make(map[string]string, len(replacements))
	for k, v := range replacements {
		m[k] = v
	}
	return &PathMapper{replacements: m}
}

// Map returns the replacement for path, or path itself.
func (p *PathMapper) Map(path string) string {
	if p == nil {
		return path
	}
	if to, ok := p.replacements[path]; ok {
		return to
	}
	return path
}
