package service

import "pdv-sorveteria/models"

var intentLabels = map[string]string{
	string(models.IntentOpen):       "Em aberto",
	string(models.IntentOnTerminal): "Na maquininha",
	string(models.IntentProcessing): "Processando",
	string(models.IntentFinished):   "Finalizado",
	string(models.IntentCanceled):   "Cancelada",
	string(models.IntentAbandoned):  "Abandonada",
}

var sessionLabels = map[models.SessionState]string{
	models.SessionIdle:       "",
	models.SessionRequesting: "Enviando cobrança",
	models.SessionPolling:    "Aguardando pagamento",
	models.SessionFinished:   "Finalizado",
	models.SessionCanceled:   "Cancelada",
	models.SessionAbandoned:  "Abandonada",
	models.SessionFailed:     "Falha na cobrança",
}

// IntentLabel maps a gateway status to the text shown to the operator.
// Unknown statuses are shown as they came.
func IntentLabel(status string) string {
	if label, ok := intentLabels[status]; ok {
		return label
	}
	return status
}

// SessionLabel is the default text for a session state
func SessionLabel(state models.SessionState) string {
	return sessionLabels[state]
}
