package assistant

import (
	"fmt"
	"strings"
)

// responseFacts is what the response generator knows about the current turn.
type responseFacts struct {
	MachineType     string
	Manufacturer    string
	Model           string
	Symptom         string
	SymptomCategory string
	// CurrentModel is the model remembered for the conversation, which may predate this message.
	CurrentModel string
	SupportPhone string
}

// composeResponse renders the assistant reply for an intent in English or Polish.
func composeResponse(intent, language string, f responseFacts) string {
	pl := language == LanguagePolish

	switch intent {
	case IntentSearchGuide:
		switch {
		case f.Model != "" && pl:
			return fmt.Sprintf("Świetnie! Masz %s. Teraz powiedz mi - jaki jest problem? (np. \"pompa przecieka\", \"brak mocy\")", f.Model)
		case f.Model != "":
			return fmt.Sprintf("Great! You have a %s. Now tell me - what's the issue? (e.g., \"pump leaking\", \"no power\")", f.Model)
		case f.Manufacturer != "" && pl:
			return fmt.Sprintf("Rozumiem, masz maszynę %s. Jaki to model? (np. 320D, PC200)", f.Manufacturer)
		case f.Manufacturer != "":
			return fmt.Sprintf("I understand you have a %s machine. Which model? (e.g., 320D, PC200)", f.Manufacturer)
		case f.MachineType != "" && pl:
			return fmt.Sprintf("Okej, szukasz części: %s. Jaki producent? (CAT, Komatsu, JCB, etc.)", f.MachineType)
		case f.MachineType != "":
			return fmt.Sprintf("Okay, you're looking for %s parts. Which manufacturer? (CAT, Komatsu, JCB, etc.)", strings.ToLower(f.MachineType))
		case pl:
			return "Pomogę Ci znaleźć odpowiednią część! Zacznijmy od początku - jaki typ maszyny posiadasz? (koparka, ładowarka, dźwig, etc.)"
		default:
			return "I'll help you find the right part! Let's start - what type of machine do you have? (excavator, loader, crane, etc.)"
		}

	case IntentTechnicalIssue:
		switch {
		case f.Symptom != "" && pl:
			return fmt.Sprintf("Rozumiem problem: \"%s\". To wskazuje na kategorię: %s. Uruchamiam wyszukiwanie kompatybilnych części...", f.Symptom, f.SymptomCategory)
		case f.Symptom != "":
			return fmt.Sprintf("I understand the issue: \"%s\". This points to category: %s. Launching search for compatible parts...", f.Symptom, f.SymptomCategory)
		case pl:
			return "Przykro mi słyszeć o problemie. Opisz dokładniej co się dzieje, a pomogę zdiagnozować i znaleźć odpowiednią część."
		default:
			return "Sorry to hear about the problem. Describe exactly what's happening, and I'll help diagnose and find the right part."
		}

	case IntentCompatibilityCheck:
		switch {
		case f.CurrentModel != "" && pl:
			return fmt.Sprintf("Sprawdzam kompatybilność dla %s... Moment.", f.CurrentModel)
		case f.CurrentModel != "":
			return fmt.Sprintf("Checking compatibility for %s... One moment.", f.CurrentModel)
		case pl:
			return "Aby sprawdzić kompatybilność, potrzebuję znać model Twojej maszyny. Jaki to model?"
		default:
			return "To check compatibility, I need to know your machine model. Which model do you have?"
		}

	case IntentProductInquiry:
		if pl {
			return "Chętnie opowiem o tym produkcie. Który produkt Cię interesuje? Możesz podać nazwę lub numer części."
		}
		return "I'd be happy to tell you about that product. Which product are you interested in? You can provide the name or part number."

	case IntentPriceInquiry:
		if pl {
			return "Sprawdzam ceny... Oferujemy 3 opcje: Oryginalne (najwyższa jakość), Kompatybilne (dobry stosunek ceny do jakości), Budżetowe (podstawowa funkcjonalność). Którą opcję chcesz zobaczyć?"
		}
		return "Checking prices... We offer 3 options: Original (highest quality), Compatible (good value), Budget (basic functionality). Which option would you like to see?"

	case IntentReorder:
		if pl {
			return "Sprawdzam Twoje poprzednie zamówienia... Czy chcesz zamówić te same części ponownie?"
		}
		return "Checking your previous orders... Would you like to reorder the same parts?"

	case IntentRecommendation:
		switch {
		case f.CurrentModel != "" && pl:
			return fmt.Sprintf("Na podstawie Twojej maszyny %s, polecam sprawdzenie tych części...", f.CurrentModel)
		case f.CurrentModel != "":
			return fmt.Sprintf("Based on your %s, I recommend checking these parts...", f.CurrentModel)
		case pl:
			return "Chętnie doradzę! Najpierw powiedz mi - jaki model maszyny posiadasz?"
		default:
			return "I'd be happy to advise! First tell me - which machine model do you have?"
		}

	case IntentMaintenanceAdvice:
		if pl {
			return "Świetne pytanie o konserwację! Dla części hydraulicznych zalecam wymianę co 5000 godzin pracy lub przy pierwszych oznakach zużycia (przecieki, utrata ciśnienia). Chcesz zobaczyć zestaw konserwacyjny?"
		}
		return "Great question about maintenance! For hydraulic parts, I recommend replacement every 5000 operating hours or at first signs of wear (leaks, pressure loss). Want to see a maintenance kit?"

	case IntentShippingInquiry:
		if pl {
			return "Czas dostawy: Polska 2-3 dni, UE 3-5 dni, Świat 7-14 dni. Darmowa dostawa przy zamówieniach powyżej 500€."
		}
		return "Shipping times: Poland 2-3 days, EU 3-5 days, Worldwide 7-14 days. Free shipping on orders over €500."

	case IntentEscalate:
		if pl {
			return "Rozumiem, że potrzebujesz pomocy eksperta. Łączę Cię z naszym specjalistą. Możesz też zadzwonić: " + f.SupportPhone
		}
		return "I understand you need expert help. Connecting you with our specialist. You can also call: " + f.SupportPhone

	default:
		if pl {
			return "Jestem tutaj, aby pomóc! Mogę: 1) Pomóc znaleźć części, 2) Sprawdzić kompatybilność, 3) Odpowiedzieć na pytania techniczne, 4) Pokazać Twoje poprzednie zamówienia. Co Cię interesuje?"
		}
		return "I'm here to help! I can: 1) Help find parts, 2) Check compatibility, 3) Answer technical questions, 4) Show your previous orders. What interests you?"
	}
}
