package models

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse - короткий ответ для операций без тела (mute, autoplay, delete).
type StatusResponse struct {
	Status string `json:"status"`
}
