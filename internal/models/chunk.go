package models

// DocumentChunk is an embedded slice of reference documentation. The embedding
// dimensionality must match the retrieval index configuration.
type DocumentChunk struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Namespace string    `json:"namespace"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// RetrievedChunk pairs a chunk with its cosine similarity to the query.
type RetrievedChunk struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}
