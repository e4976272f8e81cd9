package api

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jmcleod/backdrop/editor"
)

// Message keys. The English catalog entry is the key itself.
const (
	msgWelcomeNew         = "Welcome to the photo editor! Send a photo and I will remove its background, then you can put the subject on a solid color or on another photo."
	msgWelcomeBack        = "Welcome back to the photo editor! Ready for the next photo?"
	msgHelp               = "1. Send a photo and the background is removed. 2. Choose change background. 3. Pick a color or send another photo to use as the background. Clear photos with a contrasting background work best; PNG keeps transparency."
	msgForegroundOK       = "Background removed! Choose a color or use your own photo as the new background."
	msgPalette            = "Choose a new background: a solid color or your own photo."
	msgSolidApplied       = "%s background applied! Try another color or send a new photo."
	msgAwaitingBackground = "Send the photo to use as the new background. Landscapes work best."
	msgCustomApplied      = "Background replaced! Send a new photo to start again."
	msgCancelled          = "Operation cancelled."
	msgNothingToCancel    = "Nothing to cancel."
	msgNoStats            = "No statistics yet. Process your first photo!"

	msgErrDecode        = "That file is not an image I can read. Try a PNG or JPEG."
	msgErrUnknownColor  = "That color is not available."
	msgErrEmptyImage    = "The image is empty."
	msgErrSegmentation  = "Background removal failed. Try another photo in a moment."
	msgErrNoSession     = "Remove the background from a photo first."
	msgErrUnknownIntent = "Unknown action."
	msgErrInternal      = "Something went wrong. Please try again."
	msgErrAccessDenied  = "Access denied."
)

var russian = map[string]string{
	msgWelcomeNew:         "Добро пожаловать в фоторедактор! Отправьте фото, я удалю фон, а затем вы сможете поставить объект на цветной фон или на другое фото.",
	msgWelcomeBack:        "С возвращением в фоторедактор! Готовы к следующему фото?",
	msgHelp:               "1. Отправьте фото, и фон будет удален. 2. Выберите смену фона. 3. Выберите цвет или отправьте другое фото в качестве фона. Лучше всего работают четкие фото с контрастным фоном; PNG сохраняет прозрачность.",
	msgForegroundOK:       "Фон успешно удален! Выберите цвет или используйте свое фото как новый фон.",
	msgPalette:            "Выберите новый фон: цвет или свое фото.",
	msgSolidApplied:       "Фон «%s» успешно применен! Попробуйте другой цвет или отправьте новое фото.",
	msgAwaitingBackground: "Отправьте фото, которое станет новым фоном. Лучше всего подходят пейзажи.",
	msgCustomApplied:      "Фон успешно заменен! Отправьте новое фото, чтобы начать заново.",
	msgCancelled:          "Операция отменена.",
	msgNothingToCancel:    "Отменять нечего.",
	msgNoStats:            "Статистики пока нет. Сделайте первую обработку!",

	msgErrDecode:        "Не удалось прочитать изображение. Попробуйте PNG или JPEG.",
	msgErrUnknownColor:  "Этот цвет недоступен.",
	msgErrEmptyImage:    "Изображение пустое.",
	msgErrSegmentation:  "Не удалось удалить фон. Попробуйте другое фото чуть позже.",
	msgErrNoSession:     "Сначала удалите фон с фото.",
	msgErrUnknownIntent: "Неизвестное действие.",
	msgErrInternal:      "Произошла ошибка. Попробуйте еще раз.",
	msgErrAccessDenied:  "Доступ запрещен.",
}

var russianColors = map[string]string{
	"white": "белый",
	"black": "черный",
	"blue":  "синий",
	"green": "зеленый",
	"red":   "красный",
}

var supportedLanguages = []language.Tag{language.English, language.Russian}

var languageMatcher = language.NewMatcher(supportedLanguages)

func init() {
	for key, ru := range russian {
		message.SetString(language.English, key, key)
		message.SetString(language.Russian, key, ru)
	}
	for name, ru := range russianColors {
		message.SetString(language.English, name, name)
		message.SetString(language.Russian, name, ru)
	}
}

// printerFor returns a printer for the best supported match of the
// request's Accept-Language header. English is the fallback.
func printerFor(r *http.Request) *message.Printer {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, idx, _ := languageMatcher.Match(tags...)
	return message.NewPrinter(supportedLanguages[idx])
}

// colorName returns the display name of a palette color for the printer's
// language.
func colorName(p *message.Printer, name string) string {
	if _, ok := russianColors[name]; !ok {
		return name
	}
	return p.Sprintf(name)
}

// caption returns the localized text for a successful outcome.
func caption(p *message.Printer, res editor.Result) string {
	switch res.Outcome {
	case editor.OutcomeForegroundExtracted:
		return p.Sprintf(msgForegroundOK)
	case editor.OutcomePalette:
		return p.Sprintf(msgPalette)
	case editor.OutcomeSolidApplied:
		return p.Sprintf(msgSolidApplied, colorName(p, res.Color))
	case editor.OutcomeAwaitingBackground:
		return p.Sprintf(msgAwaitingBackground)
	case editor.OutcomeCustomApplied:
		return p.Sprintf(msgCustomApplied)
	case editor.OutcomeCancelled:
		return p.Sprintf(msgCancelled)
	case editor.OutcomeNothingToCancel:
		return p.Sprintf(msgNothingToCancel)
	default:
		return ""
	}
}

// errorMessage returns the localized user-facing text for an error kind.
func errorMessage(p *message.Printer, kind editor.Kind) string {
	switch kind {
	case editor.KindDecode:
		return p.Sprintf(msgErrDecode)
	case editor.KindUnknownColor:
		return p.Sprintf(msgErrUnknownColor)
	case editor.KindEmptyImage:
		return p.Sprintf(msgErrEmptyImage)
	case editor.KindSegmentation:
		return p.Sprintf(msgErrSegmentation)
	case editor.KindNoActiveSession:
		return p.Sprintf(msgErrNoSession)
	case editor.KindUnknownIntent:
		return p.Sprintf(msgErrUnknownIntent)
	default:
		return p.Sprintf(msgErrInternal)
	}
}
