package metadata

// Stop-word lists for the two primary deployment languages plus generic
// document jargon. Curated rather than pulled from a corpus library so
// keyword extraction stays deterministic across builds.

var englishStopWords = []string{
	"about", "above", "after", "again", "all", "and", "any", "are", "been",
	"before", "being", "below", "between", "both", "but", "can", "did",
	"does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "her", "here", "him", "his",
	"how", "into", "its", "itself", "just", "more", "most", "not", "now",
	"off", "once", "only", "other", "our", "out", "over", "own", "same",
	"she", "should", "some", "such", "than", "that", "the", "their",
	"them", "then", "there", "these", "they", "this", "those", "through",
	"too", "under", "until", "very", "was", "were", "what", "when",
	"where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your",
}

var romanianStopWords = []string{
	"acea", "aceasta", "aceea", "acel", "acest", "acesta", "acum", "alte",
	"altfel", "apoi", "atunci", "avea", "avem", "avut", "care", "cand",
	"când", "ceva", "cine", "cum", "daca", "dacă", "dar", "decat",
	"decât", "deci", "despre", "din", "dintre", "doar", "dupa", "după",
	"este", "fiind", "fara", "fără", "fiecare", "fost", "iar", "inca",
	"încă", "insa", "însă", "intre", "între", "mai", "mult", "multe",
	"nici", "niste", "niște", "noi", "nostru", "nou", "numai", "ori",
	"pana", "până", "patru", "pentru", "peste", "prea", "prin", "sau",
	"sunt", "suntem", "toata", "toată", "toate", "totul", "trei", "unde",
	"unei", "unele", "unui", "vom", "vor", "vreo", "vreun",
}

// documentJargon covers tokens that dominate document libraries without
// describing content: file-management vocabulary, UI words that leak in
// from exported pages, and scanner boilerplate.
var documentJargon = []string{
	"file", "files", "copy", "draft", "document", "documents", "doc",
	"docs", "page", "pages", "pdf", "scan", "scanned", "print", "printed",
	"download", "upload", "click", "here", "open", "view", "save",
	"attachment", "untitled", "version", "revision", "fisier", "fișier",
	"pagina", "pagină", "exemplar",
}

var stopWords map[string]struct{}

func init() {
	stopWords = make(map[string]struct{},
		len(englishStopWords)+len(romanianStopWords)+len(documentJargon))

	for _, list := range [][]string{englishStopWords, romanianStopWords, documentJargon} {
		for _, w := range list {
			stopWords[w] = struct{}{}
		}
	}
}

func isStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}
