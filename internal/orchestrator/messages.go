package orchestrator

import "fmt"

// Outbound message templates keyed by id, then language. Placeholders use
// fmt verbs and are filled by message().
var messages = map[string]map[string]string{
	"ask_preferences": {
		"nl": "Hoi! Tijd om het eten te plannen. Wat willen jullie graag eten de komende dagen?\n\nStuur je wensen en ik maak er een lekker weekmenu van!",
		"en": "Hi! Time to plan dinner. What would you like to eat the coming days?\n\nSend me your wishes and I'll create a tasty weekly menu!",
	},
	"thanks_preference": {
		"nl": "Bedankt %s! Ik neem je wensen mee.",
		"en": "Thanks %s! I'll include your wishes.",
	},
	"all_responded": {
		"nl": "Iedereen heeft gereageerd! Ik ga het menu maken...",
		"en": "Everyone responded! I'm creating the menu...",
	},
	"ask_approval": {
		"nl": "Ziet dit er goed uit? Stuur 'ok' om door te gaan, of vertel me wat je wilt aanpassen.",
		"en": "Does this look good? Send 'ok' to proceed, or tell me what you'd like to change.",
	},
	"plan_approved": {
		"nl": "Top! Ik ga de boodschappenlijst maken.",
		"en": "Great! I'll compile the shopping list.",
	},
	"full_rejection": {
		"nl": "Oke, ik maak een heel nieuw menu. Even geduld...",
		"en": "Okay, I'll create a completely new menu. One moment...",
	},
	"adjusting_plan": {
		"nl": "Ik pas het menu aan. Even geduld...",
		"en": "I'm adjusting the menu. One moment...",
	},
	"revision_failed": {
		"nl": "Sorry, dat lukte niet. Probeer het opnieuw of stuur 'ok' om door te gaan.",
		"en": "Sorry, that didn't work. Try again or send 'ok' to proceed.",
	},
	"plan_failed": {
		"nl": "Sorry, er ging iets mis bij het maken van het menu. Ik probeer het later opnieuw.",
		"en": "Sorry, something went wrong creating the menu. I'll try again later.",
	},
	"filling_cart": {
		"nl": "Ik ga de boodschappen aan je Picnic mandje toevoegen...",
		"en": "I'm adding the groceries to your Picnic cart...",
	},
	"pantry_marked": {
		"nl": "Begrepen! %d dingen sla ik over. Ik ga de rest toevoegen aan Picnic...",
		"en": "Got it! Skipping %d items. Adding the rest to Picnic...",
	},
	"pantry_none": {
		"nl": "Oke! Ik voeg alles toe aan je Picnic mandje...",
		"en": "Okay! Adding everything to your Picnic cart...",
	},
	"session_active": {
		"nl": "Er loopt al een planning! Stuur 'stop' om die te annuleren.",
		"en": "There's already a planning session active! Send 'stop' to cancel it.",
	},
	"cancelled": {
		"nl": "Planning geannuleerd. Stuur 'plan eten' om opnieuw te beginnen.",
		"en": "Planning cancelled. Send 'plan dinner' to start again.",
	},
	"picnic_error": {
		"nl": "Er ging iets mis met Picnic: %s. Probeer het handmatig.",
		"en": "Something went wrong with Picnic: %s. Please try manually.",
	},
}

// message returns the localized template for key, falling back to English.
func message(key, lang string, args ...any) string {
	templates := messages[key]
	text, ok := templates[lang]
	if !ok {
		text = templates["en"]
	}
	if text == "" {
		return "[" + key + "]"
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}
