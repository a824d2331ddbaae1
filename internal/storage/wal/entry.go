// Пакет wal — файловый журнал операций (write-ahead marker).
// Перед каждой операцией, меняющей одновременно диск и каталог
// (приём, мягкое удаление, восстановление, повторный приём орфана),
// создаётся запись со статусом pending и задействованными путями.
// После рестарта pending-записи показывают, какая операция была
// прервана и между какими путями искать файл — починка выполняется
// администратором через reconciliation, журнал сам ничего не правит.
package wal

import (
	"time"
)

// OperationType — тип операции, записываемой в журнал.
type OperationType string

const (
	// OpIngest — приём нового файла (staging → категория + запись каталога)
	OpIngest OperationType = "ingest"
	// OpSoftDelete — мягкое удаление (категория → карантин + смена состояния)
	OpSoftDelete OperationType = "soft_delete"
	// OpRestore — восстановление (карантин → категория + смена состояния)
	OpRestore OperationType = "restore"
	// OpReadmit — повторный приём орфана в каталог
	OpReadmit OperationType = "readmit"
)

// Status — статус записи журнала.
type Status string

const (
	// StatusPending — операция начата и ещё не завершена
	StatusPending Status = "pending"
	// StatusCommitted — операция успешно завершена
	StatusCommitted Status = "committed"
	// StatusRolledBack — операция отменена
	StatusRolledBack Status = "rolled_back"
)

// Entry — запись журнала. Хранится как JSON-файл {tx_id}.wal.json.
type Entry struct {
	// TransactionID — уникальный идентификатор записи (UUID v4)
	TransactionID string `json:"transaction_id"`

	// Operation — тип операции
	Operation OperationType `json:"operation"`

	// Status — текущий статус
	Status Status `json:"status"`

	// RecordID — идентификатор записи каталога
	RecordID string `json:"record_id"`

	// SourcePath — путь файла до операции
	SourcePath string `json:"source_path,omitempty"`

	// TargetPath — путь файла после операции (если уже известен)
	TargetPath string `json:"target_path,omitempty"`

	// StartedAt — время начала операции (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения (UTC). nil для pending записей.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// walFileName возвращает имя файла журнала для данной записи.
func walFileName(txID string) string {
	return txID + ".wal.json"
}
