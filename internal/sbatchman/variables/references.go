package variables

// References returns the names of all ${NAME} references in text, in order of appearance.
// The scan is byte-level: "${" opens a reference and the next "}" closes it. Empty names and unclosed
// references are skipped, as is any "$" not followed by "{".
func References(text string) []string {
	var names []string
	for i := 0; i < len(text); {
		if i+1 < len(text) && text[i] == '$' && text[i+1] == '{' {
			i += 2
			start := i
			for i < len(text) && text[i] != '}' {
				i++
			}
			if i < len(text) {
				if i > start {
					names = append(names, text[start:i])
				}
				i++
			}
			continue
		}
		i++
	}
	return names
}

// Placeholder returns the ${name} form of a variable reference.
func Placeholder(name string) string {
	return "${" + name + "}"
}
