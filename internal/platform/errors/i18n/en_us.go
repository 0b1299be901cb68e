package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown           = "UNKNOWN"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodePermanentlyBanned = "PERMANENTLY_BANNED"
	CodeNotFound          = "NOT_FOUND"
	CodeGenerationFailure = "GENERATION_FAILURE"
	CodeStoreFailure      = "STORE_FAILURE"
)

var enUSMessages = map[Code]string{
	CodeUnknown:           "Something went wrong. Try again later.",
	CodeInvalidInput:      "Please enter a valid email address.",
	CodeUnauthorized:      "This email is not registered in the student list.",
	CodePermanentlyBanned: "Agent {{.Email}} abandoned their mission and is permanently banned.",
	CodeNotFound:          "No mission has been issued to {{.Email}} yet.",
	CodeGenerationFailure: "The Chaos Architect could not draft a mission right now. Try again.",
	CodeStoreFailure:      "Mission records are unavailable right now. Try again.",
}

var ptBRMessages = map[Code]string{
	CodeUnknown:           "Algo deu errado. Tente novamente mais tarde.",
	CodeInvalidInput:      "Informe um endereço de e-mail válido.",
	CodeUnauthorized:      "Este e-mail não está na lista de estudantes.",
	CodePermanentlyBanned: "O agente {{.Email}} abandonou a missão e foi banido permanentemente.",
	CodeNotFound:          "Nenhuma missão foi emitida para {{.Email}} ainda.",
	CodeGenerationFailure: "O Chaos Architect não conseguiu criar uma missão agora. Tente novamente.",
	CodeStoreFailure:      "Os registros de missões estão indisponíveis agora. Tente novamente.",
}
