package messaging

// Subjects follow {service}.{resource}.{action}.
const (
	SubjectAlertsCreated     = "respond.alerts.created"
	SubjectIncidentsCreated  = "respond.incidents.created"
	SubjectIncidentsUpdated  = "respond.incidents.updated"
	SubjectIncidentsDeleted  = "respond.incidents.deleted"
	SubjectEvidenceRecorded  = "respond.evidence.recorded"
	SubjectDetectionsRequest = "respond.detections.request"
)

// QueueRespondWorkers is the queue group for respond replicas consuming
// detection requests.
const QueueRespondWorkers = "respond-workers"
