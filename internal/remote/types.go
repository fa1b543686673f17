package remote

// SigninRequest authenticates against the document store.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
}

// SigninResponse carries the session token on success.
type SigninResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// APIError is the error shape the document store returns in response
// bodies.
type APIError struct {
	Error string `json:"error"`
}

// TagSuggestion is a tag attached to an upload, with its confidence.
type TagSuggestion struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// FileMetadata is the enrichment payload sent alongside file bytes in a
// create upload.
type FileMetadata struct {
	ExtractedText string          `json:"extractedText,omitempty"`
	WordCount     int             `json:"wordCount,omitempty"`
	Keywords      []string        `json:"keywords,omitempty"`
	Tags          []TagSuggestion `json:"tags,omitempty"`
	OCR           bool            `json:"ocr,omitempty"`
}

// MoveRequest moves or renames a file or folder.
type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CreateFolderRequest creates a folder, optionally as part of a batch.
type CreateFolderRequest struct {
	Path    string `json:"path"`
	BatchID string `json:"batchId,omitempty"`
}
