package circuitbreak

import "github.com/briefcall/marketplace/internal/logging"

var CircuitBreakChan chan string

const (
	AnalysisService      = "analysis"
	DBService            = "database"
	MinioService         = "minio"
	KafkaProducerService = "kafka_producer"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("marketplace app is not created")
	}

	CircuitBreakChan <- service
}
