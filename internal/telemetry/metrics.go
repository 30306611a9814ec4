package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the application metric instruments.
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	QuestionsAnswered metric.Int64Counter
	AnswerConfidence  metric.Float64Histogram
	DocumentsIngested metric.Int64Counter
	FragmentsIndexed  metric.Int64Counter
	IngestionDuration metric.Float64Histogram
	RetrievalResults  metric.Int64Counter
}

// InitMetrics registers all instruments on the global meter.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("lms-assistant-backend")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	questionsAnswered, err := meter.Int64Counter(
		"rag.questions.answered",
		metric.WithDescription("Total questions answered by the pipeline"),
	)
	if err != nil {
		return nil, err
	}

	answerConfidence, err := meter.Float64Histogram(
		"rag.answer.confidence",
		metric.WithDescription("Confidence of generated answers"),
	)
	if err != nil {
		return nil, err
	}

	documentsIngested, err := meter.Int64Counter(
		"rag.documents.ingested",
		metric.WithDescription("Total documents ingested into the vector index"),
	)
	if err != nil {
		return nil, err
	}

	fragmentsIndexed, err := meter.Int64Counter(
		"rag.fragments.indexed",
		metric.WithDescription("Total fragments written to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"rag.ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalResults, err := meter.Int64Counter(
		"rag.retrieval.results",
		metric.WithDescription("Fragments returned by retrieval"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		QuestionsAnswered: questionsAnswered,
		AnswerConfidence:  answerConfidence,
		DocumentsIngested: documentsIngested,
		FragmentsIndexed:  fragmentsIndexed,
		IngestionDuration: ingestionDuration,
		RetrievalResults:  retrievalResults,
	}, nil
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}
	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordAnswer records one completed question with its confidence and how
// many fragments grounded it.
func (m *Metrics) RecordAnswer(confidence float64, sources int) {
	attrs := []attribute.KeyValue{
		attribute.Bool("rag.grounded", sources > 0),
	}
	m.QuestionsAnswered.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.AnswerConfidence.Record(context.Background(), confidence, metric.WithAttributes(attrs...))
	m.RetrievalResults.Add(context.Background(), int64(sources))
}

// RecordIngestion records one document ingestion attempt.
func (m *Metrics) RecordIngestion(duration float64, fragments int, success bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("rag.success", success),
	}
	m.DocumentsIngested.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.IngestionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if fragments > 0 {
		m.FragmentsIndexed.Add(context.Background(), int64(fragments))
	}
}
