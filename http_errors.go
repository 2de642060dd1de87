package s2s

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ErrorResponse is the JSON body for every failed request
type ErrorResponse struct {
	Status  int            `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Errors  map[string]any `json:"errors,omitempty"`
}

// NewErrorResponse maps err to the public error body. Anything that is not
// a rich error is reported as a generic internal error.
func NewErrorResponse(err error) (ErrorResponse, *errors.Error) {
	richErr := AsRichError(err)
	status := StatusCode(richErr)

	res := ErrorResponse{
		Status:  status,
		Code:    richErr.TextCode,
		Message: richErr.Message,
	}

	if status >= 500 {
		res.Code = TextCodeInternal
		res.Message = ErrInternal.Message
		return res, richErr
	}

	if res.Code == "" {
		res.Code = textCodeForStatus(status)
	}

	if fields := validationFields(richErr); len(fields) > 0 {
		res.Errors = fields
	}

	return res, richErr
}

func validationFields(richErr *errors.Error) map[string]any {
	if richErr.Category != errors.CategoryValidation && richErr.Category != errors.CategoryBadInput {
		return nil
	}

	out := map[string]any{}
	for field, msg := range richErr.ValidationMap() {
		out[field] = msg
	}
	if len(out) == 0 && richErr.Category == errors.CategoryValidation {
		for k, v := range richErr.Metadata {
			out[k] = v
		}
	}
	return out
}

func textCodeForStatus(status int) string {
	switch status {
	case errors.CodeBadRequest:
		return TextCodeBadRequest
	case errors.CodeUnauthorized:
		return TextCodeUnauthorized
	case errors.CodeForbidden:
		return TextCodeForbidden
	case errors.CodeNotFound:
		return TextCodeDocumentNotFound
	case errors.CodeConflict:
		return TextCodeAlreadyRegistered
	case 422:
		return TextCodeValidation
	case 429:
		return TextCodeTooManyRequests
	default:
		return TextCodeInternal
	}
}

// ErrorHandler writes errors as JSON. Server side failures are logged with
// their full context, the client only gets the generic message.
func ErrorHandler(logger Logger, debug ...bool) router.ErrorHandler {
	if logger == nil {
		logger = defaultLogger()
	}
	verbose := len(debug) > 0 && debug[0]

	return func(c router.Context, err error) error {
		res, richErr := NewErrorResponse(err)

		if res.Status >= 500 {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"error", richErr,
			)
		} else {
			logger.Debug("request rejected",
				"path", c.Path(),
				"status", res.Status,
				"code", res.Code,
			)
		}

		if verbose {
			logger.Debug("error details", "details", print.MaybePrettyJSON(richErr))
		}

		return c.JSON(res.Status, res)
	}
}
