package extraction

import (
	"math"
	"net/http"

	"golang.org/x/text/language"

	"catastro-backend/internal/documents"
)

// Envelope is the public JSON contract for an extraction request.
type Envelope struct {
	Success        bool     `json:"success"`
	Data           *Fields  `json:"data,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	BackendUsed    string   `json:"backend_used,omitempty"`
	ProcessingTime float64  `json:"processing_time"`
	Message        string   `json:"message"`
	DocumentID     string   `json:"document_id,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// NewEnvelope maps an outcome to the response body. The message is chosen
// from the outcome kind only; backend error text never reaches it.
func NewEnvelope(out Outcome, lang language.Tag) Envelope {
	env := Envelope{
		ProcessingTime: math.Round(out.ProcessingTime.Seconds()*1000) / 1000,
		DocumentID:     out.DocumentID,
	}
	cat := catalogFor(lang)
	if succ, ok := out.Success(); ok {
		fields := succ.Fields
		if fields == nil {
			fields = Fields{}
		}
		conf := succ.Confidence
		env.Success = true
		env.Data = &fields
		env.Confidence = &conf
		env.BackendUsed = string(succ.Backend)
		env.Message = cat.success(documents.Type(out.DocumentType))
		return env
	}
	fail, _ := out.Failure()
	env.Error = string(fail.Kind)
	env.Message = cat.failure(fail)
	return env
}

// HTTPStatus returns the response status for an outcome. Backend
// exhaustion is reported in the body with 200.
func HTTPStatus(out Outcome) int {
	fail, ok := out.Failure()
	if !ok {
		return http.StatusOK
	}
	switch fail.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConfiguration, KindInternal:
		return http.StatusInternalServerError
	case KindCanceled:
		return http.StatusServiceUnavailable
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusOK
	}
}

var supportedLanguages = []language.Tag{language.Spanish, language.English}

var languageMatcher = language.NewMatcher(supportedLanguages)

// MatchLanguage picks the response language from an Accept-Language header.
// Spanish is the default.
func MatchLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.Spanish
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return language.Spanish
	}
	return supportedLanguages[idx]
}

type messageCatalog struct {
	succeeded  map[documents.Type]string
	byReason   map[string]string
	byKind     map[ErrorKind]string
	badRequest string
}

func (m messageCatalog) success(t documents.Type) string {
	if msg, ok := m.succeeded[t]; ok {
		return msg
	}
	return m.succeeded[documents.TypeProperty]
}

func (m messageCatalog) failure(f Failure) string {
	if f.Kind == KindInvalidInput {
		if msg, ok := m.byReason[f.Reason]; ok {
			return msg
		}
		return m.badRequest
	}
	if msg, ok := m.byKind[f.Kind]; ok {
		return msg
	}
	return m.byKind[KindInternal]
}

func catalogFor(lang language.Tag) messageCatalog {
	if base, _ := lang.Base(); base.String() == "en" {
		return englishMessages
	}
	return spanishMessages
}

var spanishMessages = messageCatalog{
	succeeded: map[documents.Type]string{
		documents.TypeProperty: "Documento de propiedad procesado exitosamente",
		documents.TypeLien:     "Documento de gravamen procesado exitosamente",
	},
	byReason: map[string]string{
		documents.ReasonMissingFile:             "No se recibió ningún archivo",
		documents.ReasonUnsupportedFormat:       "Formato no soportado: solo se aceptan archivos PDF",
		documents.ReasonSizeLimit:               "El archivo está vacío o excede el tamaño máximo permitido",
		documents.ReasonUnsupportedDocumentType: "Tipo de documento no soportado: use propiedad o gravamen",
		documents.ReasonUnsupportedPreference:   "Preferencia de extractor no soportada",
	},
	byKind: map[ErrorKind]string{
		KindBackendTimeout:   "No fue posible procesar el documento en el tiempo límite",
		KindBackendExecution: "No fue posible extraer la información del documento",
		KindConfiguration:    "El servicio no está configurado correctamente",
		KindCanceled:         "La solicitud fue cancelada",
		KindInternal:         "Error interno al procesar el documento",
		KindRateLimited:      "Demasiadas solicitudes, intente de nuevo más tarde",
	},
	badRequest: "Solicitud inválida",
}

var englishMessages = messageCatalog{
	succeeded: map[documents.Type]string{
		documents.TypeProperty: "Property document processed successfully",
		documents.TypeLien:     "Lien document processed successfully",
	},
	byReason: map[string]string{
		documents.ReasonMissingFile:             "No file was received",
		documents.ReasonUnsupportedFormat:       "Unsupported format: only PDF files are accepted",
		documents.ReasonSizeLimit:               "The file is empty or exceeds the maximum allowed size",
		documents.ReasonUnsupportedDocumentType: "Unsupported document type: use property or lien",
		documents.ReasonUnsupportedPreference:   "Unsupported backend preference",
	},
	byKind: map[ErrorKind]string{
		KindBackendTimeout:   "The document could not be processed in time",
		KindBackendExecution: "The document information could not be extracted",
		KindConfiguration:    "The service is not configured correctly",
		KindCanceled:         "The request was canceled",
		KindInternal:         "Internal error while processing the document",
		KindRateLimited:      "Too many requests, please try again later",
	},
	badRequest: "Invalid request",
}
