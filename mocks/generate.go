package mocks

//go:generate mockgen -destination=./mock_stream.go -package=mocks github.com/lunarcap/marketdeck/internal/stream Conn,Dialer
//go:generate mockgen -destination=./mock_dispatcher.go -package=mocks github.com/lunarcap/marketdeck/internal/stream Dispatcher
